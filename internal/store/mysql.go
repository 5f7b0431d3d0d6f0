package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// node is one stored subtree: the JSON value at a path. A path has either
// its own row or descendant rows, never both.
type node struct {
	Path  string `gorm:"primaryKey;size:512"`
	Value string `gorm:"type:json"`
}

func (node) TableName() string { return "tree_nodes" }

// MySQL implements Tree on a single gorm-managed node table, for
// installations that self-host instead of using Firebase.
type MySQL struct {
	db *gorm.DB
}

func NewMySQL(db *gorm.DB) (*MySQL, error) {
	if err := db.AutoMigrate(&node{}); err != nil {
		return nil, fmt.Errorf("migrate tree_nodes: %w", err)
	}
	return &MySQL{db: db}, nil
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}

func (s *MySQL) Get(ctx context.Context, path string, out interface{}) error {
	path = cleanPath(path)
	db := s.db.WithContext(ctx)

	if path != "" {
		var row node
		err := db.Where("path = ?", path).First(&row).Error
		if err == nil {
			if uerr := json.Unmarshal([]byte(row.Value), out); uerr != nil {
				return fmt.Errorf("mysql decode %s: %w", path, uerr)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("mysql get %s: %w", path, err)
		}
	}

	// Interior path: assemble the subtree from descendant rows.
	rows, err := s.descendants(ctx, path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}

	tree := make(map[string]interface{})
	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	for _, row := range rows {
		rel := strings.TrimPrefix(row.Path, prefix)
		var value interface{}
		if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
			return fmt.Errorf("mysql decode %s: %w", row.Path, err)
		}
		insertAt(tree, strings.Split(rel, "/"), value)
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("mysql get %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("mysql decode %s: %w", path, err)
	}
	return nil
}

func insertAt(tree map[string]interface{}, segs []string, value interface{}) {
	for _, seg := range segs[:len(segs)-1] {
		child, ok := tree[seg].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			tree[seg] = child
		}
		tree = child
	}
	tree[segs[len(segs)-1]] = value
}

func (s *MySQL) descendants(ctx context.Context, path string) ([]node, error) {
	var rows []node
	db := s.db.WithContext(ctx)
	if path == "" {
		if err := db.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("mysql scan root: %w", err)
		}
		return rows, nil
	}
	if err := db.Where("path LIKE ?", likePrefix(path)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("mysql scan %s: %w", path, err)
	}
	return rows, nil
}

func likePrefix(path string) string {
	escaped := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_").Replace(path)
	return escaped + "/%"
}

func (s *MySQL) Set(ctx context.Context, path string, value interface{}) error {
	path = cleanPath(path)
	if path == "" {
		return fmt.Errorf("mysql set: empty path")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mysql set %s: %w", path, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path = ? OR path LIKE ?", path, likePrefix(path)).Delete(&node{}).Error; err != nil {
			return err
		}
		return tx.Create(&node{Path: path, Value: string(raw)}).Error
	})
	if err != nil {
		return fmt.Errorf("mysql set %s: %w", path, err)
	}
	return nil
}

func (s *MySQL) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	path = cleanPath(path)
	db := s.db.WithContext(ctx)

	// If the value lives in a single row, merge into its JSON document.
	var row node
	err := db.Where("path = ?", path).First(&row).Error
	if err == nil {
		doc := make(map[string]interface{})
		if uerr := json.Unmarshal([]byte(row.Value), &doc); uerr != nil {
			return fmt.Errorf("mysql decode %s: %w", path, uerr)
		}
		for k, v := range fields {
			doc[k] = v
		}
		raw, merr := json.Marshal(doc)
		if merr != nil {
			return fmt.Errorf("mysql update %s: %w", path, merr)
		}
		if serr := db.Model(&node{}).Where("path = ?", path).Update("value", string(raw)).Error; serr != nil {
			return fmt.Errorf("mysql update %s: %w", path, serr)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("mysql update %s: %w", path, err)
	}

	// Otherwise update each named child in place.
	for key, value := range fields {
		if err := s.Set(ctx, path+"/"+key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQL) Push(ctx context.Context, path string, value interface{}) (string, error) {
	key := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := s.Set(ctx, cleanPath(path)+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MySQL) Remove(ctx context.Context, path string) error {
	path = cleanPath(path)
	if path == "" {
		if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&node{}).Error; err != nil {
			return fmt.Errorf("mysql remove root: %w", err)
		}
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("path = ? OR path LIKE ?", path, likePrefix(path)).
		Delete(&node{}).Error
	if err != nil {
		return fmt.Errorf("mysql remove %s: %w", path, err)
	}
	return nil
}

func (s *MySQL) Exists(ctx context.Context, path string) (bool, error) {
	path = cleanPath(path)
	var count int64
	err := s.db.WithContext(ctx).Model(&node{}).
		Where("path = ? OR path LIKE ?", path, likePrefix(path)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("mysql exists %s: %w", path, err)
	}
	return count > 0, nil
}
