package database

import "fmt"

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return nil
}
