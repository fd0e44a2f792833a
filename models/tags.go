package models

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm/schema"
)

func init() {
	schema.RegisterSerializer("tags", TagsSerializer{})
}

// TagsSerializer stores a string list as one comma-joined column so that
// substring search only ever sees tag text. Tags never contain commas.
type TagsSerializer struct{}

// Scan implements schema.SerializerInterface.
func (TagsSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var raw string
	switch v := dbValue.(type) {
	case nil:
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("failed to scan tags value: %#v", dbValue)
	}
	tags := []string{}
	if raw != "" {
		tags = strings.Split(raw, ",")
	}
	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(tags))
	return nil
}

// Value implements schema.SerializerInterface.
func (TagsSerializer) Value(_ context.Context, _ *schema.Field, _ reflect.Value, fieldValue interface{}) (interface{}, error) {
	tags, _ := fieldValue.([]string)
	return strings.Join(tags, ","), nil
}
