package importsources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
)

// Result summarizes an import run.
type Result struct {
	Total    int
	Imported int
	Errors   []string
}

// Importer loads sources from CSV into the store.
type Importer struct {
	store     store.Store
	remoteURL string
	client    *http.Client
}

// NewImporter creates an importer. When remoteURL is set and the CSV path
// does not exist, the file is downloaded from there first.
func NewImporter(st store.Store, remoteURL string) *Importer {
	return &Importer{store: st, remoteURL: remoteURL, client: http.DefaultClient}
}

// ImportSources imports sources from a CSV file. Rows that fail are reported
// in the result and do not stop the import.
func (i *Importer) ImportSources(ctx context.Context, csvPath string) (*Result, error) {
	log.Info().Str("csv", csvPath).Msg("Starting source import")

	csvData, err := i.getCSVData(ctx, csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get CSV data: %w", err)
	}
	if c, ok := csvData.(io.Closer); ok {
		defer c.Close()
	}

	res, err := i.Import(ctx, csvData)
	if err != nil {
		return nil, fmt.Errorf("failed to import sources: %w", err)
	}

	log.Info().
		Int("total", res.Total).
		Int("success", res.Imported).
		Int("errors", len(res.Errors)).
		Msg("Import summary")
	return res, nil
}

func (i *Importer) getCSVData(ctx context.Context, csvPath string) (io.Reader, error) {
	if _, err := os.Stat(csvPath); err == nil {
		log.Info().Str("path", csvPath).Msg("Using local CSV file")
		return os.Open(csvPath)
	}

	if i.remoteURL == "" {
		return nil, fmt.Errorf("CSV file not found: %s", csvPath)
	}

	log.Info().Str("url", i.remoteURL).Str("path", csvPath).Msg("Local CSV file not found. Downloading from remote source")
	data, err := i.download(ctx, i.remoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download CSV file: %w", err)
	}
	if err := os.WriteFile(csvPath, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", csvPath).Msg("Could not save downloaded CSV")
	}
	return strings.NewReader(string(data)), nil
}

func (i *Importer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: HTTP status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Import reads CSV rows with a header. The url column is required; name,
// kind, weight, category, tags (separated by ';'), active and
// poll_interval_minutes are optional.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	log.Debug().Strs("header", header).Msg("CSV header read")

	cols := make(map[string]int, len(header))
	for idx, column := range header {
		cols[strings.ToLower(strings.TrimSpace(column))] = idx
	}
	if _, ok := cols["url"]; !ok {
		return nil, fmt.Errorf("required column 'url' not found in CSV header")
	}
	get := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	res := &Result{}
	lineCount := 1
	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			log.Debug().Int("line", lineCount).Msg("Skipping empty row")
			continue
		}
		res.Total++

		src, err := sourceFromRow(func(name string) string { return get(record, name) })
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		logger := log.With().Int("line", lineCount).Str("url", src.URL).Logger()
		err = i.store.WithinTx(ctx, func(tx store.Tx) error {
			return tx.CreateSource(ctx, src)
		})
		if err != nil {
			if store.IsConflict(err) {
				logger.Warn().Msg("Duplicate URL")
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: duplicate URL: %s", lineCount, src.URL))
			} else {
				logger.Error().Err(err).Msg("Failed to insert source")
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			}
			continue
		}

		res.Imported++
		logger.Debug().Msg("Source inserted successfully")
	}
	return res, nil
}

func sourceFromRow(get func(string) string) (*models.Source, error) {
	src := models.NewSource()
	src.ID = uuid.NewString()
	src.URL = get("url")
	if src.URL == "" {
		return nil, fmt.Errorf("empty URL")
	}
	src.Name = get("name")
	if src.Name == "" {
		src.Name = src.URL
	}
	src.Category = get("category")

	if v := get("kind"); v != "" {
		src.Kind = models.SourceKind(strings.ToUpper(v))
		if !src.Kind.Valid() {
			return nil, fmt.Errorf("unknown kind %q", v)
		}
	}
	if v := get("weight"); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("invalid weight %q", v)
		}
		src.Weight = w
	}
	if v := get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid active flag %q", v)
		}
		src.Active = active
	}
	if v := get("poll_interval_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid poll interval %q", v)
		}
		src.PollIntervalMinutes = n
	}
	if v := get("tags"); v != "" {
		for _, tag := range strings.Split(v, ";") {
			if tag = strings.TrimSpace(tag); tag != "" {
				src.Tags = append(src.Tags, tag)
			}
		}
	}
	return src, nil
}
