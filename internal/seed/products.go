package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"kasir/m/domain"
	"kasir/m/internal/database"
)

const insertProductSQL = `INSERT INTO products (name, unit_price, quantity, image_url, created_at)
VALUES (?, ?, ?, ?, ?) ON CONFLICT (name) DO NOTHING`

// Products ingests the catalog CSV (name,unit_price,quantity[,image_url]) into
// the products table, skipping bad rows and ignoring duplicates. It returns the
// number of products inserted.
func Products(ctx context.Context, db *sqlx.DB, csvPath string) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("unable to load product catalog %s: %w", csvPath, err)
	}
	defer file.Close()

	rows, err := loadProducts(ctx, db, file)
	if err != nil {
		return 0, err
	}
	log.Info().Int("rows", rows).Str("path", csvPath).Msg("seeded product catalog")
	return rows, nil
}

func loadProducts(ctx context.Context, db *sqlx.DB, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("unable to read product header: %w", err)
	}

	rows := 0
	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertProductSQL))
		if err != nil {
			return fmt.Errorf("unable to prepare product insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for line := 2; ; line++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Warn().Err(err).Int("line", line).Msg("unable to parse product row")
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to read product row %d: %w", line, err)
			}
			p, ok := parseProduct(record)
			if !ok {
				log.Warn().Int("line", line).Strs("record", record).Msg("skipping product row")
				continue
			}

			res, err := stmt.ExecContext(ctx, p.Name, p.UnitPrice, p.AvailableQuantity, p.ImageURL, now)
			if err != nil {
				return fmt.Errorf("unable to insert product %s: %w", p.Name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				rows++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

func parseProduct(record []string) (domain.Product, bool) {
	if len(record) < 3 {
		return domain.Product{}, false
	}
	name := strings.TrimSpace(record[0])
	if name == "" {
		return domain.Product{}, false
	}
	price, err := domain.ParseMoney(strings.TrimSpace(record[1]))
	if err != nil || price.IsNegative() {
		return domain.Product{}, false
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
	if err != nil || qty < 0 {
		return domain.Product{}, false
	}
	p := domain.Product{Name: name, UnitPrice: price.Round(domain.MoneyScale), AvailableQuantity: qty}
	if len(record) > 3 {
		p.ImageURL = strings.TrimSpace(record[3])
	}
	return p, true
}
