package seeders

import (
	"context"

	"gorm.io/gorm"
)

func init() {
	Register("codetables", SeedCodeTables)
}

// CodeEntry is one row of code_table with its translations keyed by language.
type CodeEntry struct {
	Type   string
	Code   string
	Labels map[string]string
}

// CodeTables holds the status, type and role codes the UI expects to find,
// with English and Albanian labels. sortOrder follows slice order per type.
var CodeTables = []CodeEntry{
	{"TABLE_STATUS", "FREE", map[string]string{"en": "Free", "sq": "I Lirë"}},
	{"TABLE_STATUS", "OCCUPIED", map[string]string{"en": "Occupied", "sq": "I Zënë"}},
	{"TABLE_STATUS", "RESERVED", map[string]string{"en": "Reserved", "sq": "I Rezervuar"}},

	{"ORDER_TYPE", "DINE_IN", map[string]string{"en": "Dine In", "sq": "Në Lokal"}},
	{"ORDER_TYPE", "TAKEAWAY", map[string]string{"en": "Takeaway", "sq": "Me Marrë"}},
	{"ORDER_TYPE", "DELIVERY", map[string]string{"en": "Delivery", "sq": "Dërgim"}},

	{"ORDER_STATUS", "OPEN", map[string]string{"en": "Open", "sq": "I Hapur"}},
	{"ORDER_STATUS", "PAID", map[string]string{"en": "Paid", "sq": "I Paguar"}},
	{"ORDER_STATUS", "PREPARING", map[string]string{"en": "Preparing", "sq": "Në Përgatitje"}},
	{"ORDER_STATUS", "READY", map[string]string{"en": "Ready", "sq": "Gati"}},
	{"ORDER_STATUS", "OUT_FOR_DELIVERY", map[string]string{"en": "Out for Delivery", "sq": "Në Dërgim"}},
	{"ORDER_STATUS", "COMPLETED", map[string]string{"en": "Completed", "sq": "I Përfunduar"}},
	{"ORDER_STATUS", "CANCELLED", map[string]string{"en": "Cancelled", "sq": "I Anuluar"}},

	{"USER_ROLE", "ADMIN", map[string]string{"en": "Admin", "sq": "Administrator"}},
	{"USER_ROLE", "CASHIER", map[string]string{"en": "Cashier", "sq": "Arkëtar"}},
	{"USER_ROLE", "KITCHEN", map[string]string{"en": "Kitchen", "sq": "Kuzhinë"}},
	{"USER_ROLE", "DRIVER", map[string]string{"en": "Driver", "sq": "Shofër"}},
}

// SeedCodeTables inserts CodeTables. Rows that already exist are left alone.
func SeedCodeTables(ctx context.Context, tx *gorm.DB) error {
	order := map[string]int{}
	for _, entry := range CodeTables {
		order[entry.Type]++

		err := tx.Exec(
			`INSERT OR IGNORE INTO code_table (codeType, code, sortOrder, isActive) VALUES (?, ?, ?, 1)`,
			entry.Type, entry.Code, order[entry.Type],
		).Error
		if err != nil {
			return err
		}

		var id int64
		if err := tx.Raw(
			`SELECT id FROM code_table WHERE codeType = ? AND code = ?`, entry.Type, entry.Code,
		).Row().Scan(&id); err != nil {
			return err
		}

		for lang, label := range entry.Labels {
			if err := tx.Exec(
				`INSERT OR IGNORE INTO code_translation (codeTableId, language, label) VALUES (?, ?, ?)`,
				id, lang, label,
			).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
