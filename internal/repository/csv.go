package repository

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pnlreplay/types"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

var ErrMalformedRow = errors.New("malformed csv row")

// timestampLayouts are tried in order; a bare integer is read as unix seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type tradeRecord struct {
	Timestamp string `csv:"timestamp"`
	Side      string `csv:"side"`
	Price     string `csv:"price"`
	Quantity  string `csv:"quantity"`
}

type priceRecord struct {
	Timestamp string `csv:"timestamp"`
	Price     string `csv:"price"`
	Close     string `csv:"close"`
}

// LoadTradesCSV reads timestamp,side,price,quantity rows. Rows are returned in
// file order; ordering, price and quantity checks happen in the engine.
func LoadTradesCSV(r io.Reader) ([]types.Trade, error) {
	var records []*tradeRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("read trades csv: %w", err)
	}

	trades := make([]types.Trade, 0, len(records))
	for i, rec := range records {
		line := i + 2 // header is line 1
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		side, err := types.ParseSide(rec.Side)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(rec.Price))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: price %q", ErrMalformedRow, line, rec.Price)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(rec.Quantity), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: quantity %q is not a whole number", ErrMalformedRow, line, rec.Quantity)
		}
		trades = append(trades, types.NewTrade(ts, side, price, qty))
	}
	return trades, nil
}

// LoadPricesCSV reads timestamp,price rows; a close column is accepted in place of price.
func LoadPricesCSV(r io.Reader) ([]types.PricePoint, error) {
	var records []*priceRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("read prices csv: %w", err)
	}

	prices := make([]types.PricePoint, 0, len(records))
	for i, rec := range records {
		line := i + 2
		ts, err := parseTimestamp(rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		raw := rec.Price
		if strings.TrimSpace(raw) == "" {
			raw = rec.Close
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: price %q", ErrMalformedRow, line, raw)
		}
		prices = append(prices, types.PricePoint{Timestamp: ts, Price: price})
	}
	return prices, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
