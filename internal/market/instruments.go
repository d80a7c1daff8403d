package market

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"mgate/internal/broker"
	"mgate/internal/errors"
	"mgate/internal/logger"
)

// Store caches the broker's instrument scrip master in memory and mirrors it
// to a local CSV snapshot. Readers (symbol search) and the refresh job share
// it through the RWMutex.
type Store struct {
	mu           sync.RWMutex
	client       broker.Client
	snapshotFile string

	header      []string
	rows        [][]string
	exchangeIdx int
	symbolIdx   int
	refreshedAt time.Time
}

// NewStore creates an empty store that refreshes through client.
func NewStore(client broker.Client, snapshotFile string) *Store {
	return &Store{
		client:       client,
		snapshotFile: snapshotFile,
		exchangeIdx:  -1,
		symbolIdx:    -1,
	}
}

// Refresh downloads the instrument master, swaps the in-memory rows and
// writes the CSV snapshot. Returns the number of data rows.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	raw, err := s.client.Instruments(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeUpstream, "Could not fetch instruments")
	}

	header, rows, err := parseCSV(raw)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeUpstream, "Malformed instrument master")
	}

	exchangeIdx := columnIndex(header, "exchange", "exch")
	symbolIdx := columnIndex(header, "tradingsymbol", "symbol")

	s.mu.Lock()
	s.header = header
	s.rows = rows
	s.exchangeIdx = exchangeIdx
	s.symbolIdx = symbolIdx
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	if err := s.writeSnapshot(header, rows); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to write instrument snapshot")
	}

	return len(rows), nil
}

// Count returns the number of cached instrument rows.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// RefreshedAt returns the time of the last successful refresh.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Search returns the rows matching exchange and trading symbol,
// case-insensitively, as column-keyed maps.
func (s *Store) Search(exchange, tradingSymbol string) ([]map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "Instrument master not loaded", nil)
	}
	if s.exchangeIdx < 0 || s.symbolIdx < 0 {
		return nil, errors.New(errors.ErrCodeInternal, "Instrument master has no exchange/symbol columns", nil)
	}

	var matches []map[string]string
	for _, row := range s.rows {
		if len(row) <= s.exchangeIdx || len(row) <= s.symbolIdx {
			continue
		}
		if strings.EqualFold(row[s.exchangeIdx], exchange) && strings.EqualFold(row[s.symbolIdx], tradingSymbol) {
			matches = append(matches, rowToMap(s.header, row))
		}
	}

	if len(matches) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "Symbol not found in instrument master", nil)
	}
	return matches, nil
}

func (s *Store) writeSnapshot(header []string, rows [][]string) error {
	if s.snapshotFile == "" {
		return nil
	}

	file, err := os.Create(s.snapshotFile)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseCSV(raw []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty instrument master")
	}

	header := records[0]
	var rows [][]string
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func columnIndex(header []string, names ...string) int {
	for i, col := range header {
		for _, name := range names {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}

func rowToMap(header, row []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(row) {
			m[col] = row[i]
		}
	}
	return m
}
