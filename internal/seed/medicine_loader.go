// Package seed loads the curated alternative mappings and an optional demo catalog.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"medlink/m/domain"
)

const (
	AlternativesFile = "alternatives.csv"
	PharmaciesFile   = "pharmacies.csv"
	StockFile        = "stock.csv"
)

// DefaultAlternatives are the brand→generic pairs loaded when no alternatives file exists.
var DefaultAlternatives = [][2]string{
	{"Dolo", "Paracetamol"},
	{"Crocin", "Paracetamol"},
	{"Calpol", "Paracetamol"},
	{"Metacin", "Paracetamol"},
	{"Disprin", "Aspirin"},
	{"Ecosprin", "Aspirin"},
	{"Brufen", "Ibuprofen"},
	{"Combiflam", "Ibuprofen"},
	{"Avomine", "Promethazine"},
	{"Phenergan", "Promethazine"},
	{"Voveran", "Diclofenac"},
	{"Volini", "Diclofenac"},
	{"Augmentin", "Amoxicillin"},
	{"Mox", "Amoxicillin"},
	{"Azithral", "Azithromycin"},
	{"Zithromax", "Azithromycin"},
}

type Target interface {
	AddMapping(ctx context.Context, source, target string) (domain.AlternativeMapping, error)
	CreatePharmacy(ctx context.Context, p *domain.PharmacyLocation) error
	CreateStock(ctx context.Context, entry *domain.StockEntry) error
}

type Result struct {
	Alternatives int
	Pharmacies   int
	Stock        int
}

// Load seeds everything found in dir. Alternative mappings are idempotent; the
// pharmacy and stock files are meant for a fresh database.
func Load(ctx context.Context, target Target, dir string) (Result, error) {
	var res Result
	var err error
	if res.Alternatives, err = LoadAlternatives(ctx, target, filepath.Join(dir, AlternativesFile)); err != nil {
		return res, err
	}
	pharmacies, err := LoadPharmacies(ctx, target, filepath.Join(dir, PharmaciesFile))
	if err != nil {
		return res, err
	}
	res.Pharmacies = len(pharmacies)
	if res.Stock, err = LoadStock(ctx, target, filepath.Join(dir, StockFile), pharmacies); err != nil {
		return res, err
	}
	log.Info().Int("alternatives", res.Alternatives).Int("pharmacies", res.Pharmacies).Int("stock", res.Stock).Msg("seed complete")
	return res, nil
}

// LoadAlternatives ingests medicine_name,alternative_name rows, falling back to
// DefaultAlternatives when the file does not exist.
func LoadAlternatives(ctx context.Context, target Target, path string) (int, error) {
	pairs := DefaultAlternatives
	records, err := readCSV(path, 2)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("no alternatives file, using built-in mappings")
	case err != nil:
		return 0, err
	default:
		pairs = pairs[:0:0]
		for _, record := range records {
			pairs = append(pairs, [2]string{record[0], record[1]})
		}
	}

	rows := 0
	for _, pair := range pairs {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		if _, err := target.AddMapping(ctx, pair[0], pair[1]); err != nil {
			return rows, fmt.Errorf("unable to insert alternative %s -> %s: %w", pair[0], pair[1], err)
		}
		rows++
	}
	return rows, nil
}

// LoadPharmacies ingests name,phone,address,latitude,longitude rows and returns the
// created pharmacies keyed by lower-cased name. A missing file seeds nothing.
func LoadPharmacies(ctx context.Context, target Target, path string) (map[string]int64, error) {
	created := map[string]int64{}
	records, err := readCSV(path, 5)
	if errors.Is(err, fs.ErrNotExist) {
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	for line, record := range records {
		p := domain.PharmacyLocation{Name: record[0], Phone: record[1], Address: record[2]}
		if p.Name == "" {
			continue
		}
		lat, lon, err := optionalPair(record[3], record[4])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line+2, err)
		}
		p.Location = domain.PairCoordinates(lat, lon)
		if err := target.CreatePharmacy(ctx, &p); err != nil {
			return nil, fmt.Errorf("unable to insert pharmacy %s: %w", p.Name, err)
		}
		created[strings.ToLower(p.Name)] = p.ID
	}
	return created, nil
}

// LoadStock ingests pharmacy,name,manufacturer,quantity,expiry,price rows. Rows naming
// an unknown pharmacy are skipped.
func LoadStock(ctx context.Context, target Target, path string, pharmacies map[string]int64) (int, error) {
	records, err := readCSV(path, 6)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	rows := 0
	for line, record := range records {
		pharmacyID, ok := pharmacies[strings.ToLower(record[0])]
		if !ok {
			log.Warn().Str("pharmacy", record[0]).Int("line", line+2).Msg("skipping stock for unknown pharmacy")
			continue
		}
		entry, err := stockFromRecord(pharmacyID, record)
		if err != nil {
			return rows, fmt.Errorf("%s line %d: %w", path, line+2, err)
		}
		if err := target.CreateStock(ctx, &entry); err != nil {
			return rows, fmt.Errorf("unable to insert stock %s: %w", entry.Name, err)
		}
		rows++
	}
	return rows, nil
}

func stockFromRecord(pharmacyID int64, record []string) (domain.StockEntry, error) {
	entry := domain.StockEntry{PharmacyID: pharmacyID, Name: record[1]}
	if record[2] != "" {
		manufacturer := record[2]
		entry.Manufacturer = &manufacturer
	}
	qty, err := strconv.ParseInt(record[3], 10, 64)
	if err != nil || qty < 0 {
		return entry, fmt.Errorf("invalid quantity %q", record[3])
	}
	entry.Quantity = qty
	if entry.Expiry, err = domain.ParseDate(record[4]); err != nil {
		return entry, fmt.Errorf("invalid expiry %q", record[4])
	}
	if record[5] != "" {
		price, err := strconv.ParseFloat(record[5], 64)
		if err != nil || price < 0 {
			return entry, fmt.Errorf("invalid price %q", record[5])
		}
		entry.Price = &price
	}
	return entry, nil
}

func optionalPair(latRaw, lonRaw string) (*float64, *float64, error) {
	if latRaw == "" || lonRaw == "" {
		return nil, nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid latitude %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid longitude %q", lonRaw)
	}
	return &lat, &lon, nil
}

// readCSV returns the trimmed data rows of path, skipping the header and any row
// with fewer than width columns.
func readCSV(path string, width int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read header of %s: %w", path, err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", path, err)
		}
		if len(record) < width {
			continue
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		records = append(records, record[:width])
	}
	return records, nil
}
