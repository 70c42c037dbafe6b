package writer

import (
	"reflect"
	"testing"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
)

func TestPurchaseSchemaCoversRow(t *testing.T) {
	fields := map[string]bool{}
	for _, f := range PurchaseSchema {
		fields[f.Name] = true
	}

	rowType := reflect.TypeOf(types.PurchaseRow{})
	if rowType.NumField() != len(PurchaseSchema) {
		t.Fatalf("row has %d fields, schema has %d", rowType.NumField(), len(PurchaseSchema))
	}
	for i := 0; i < rowType.NumField(); i++ {
		tag := rowType.Field(i).Tag.Get("bigquery")
		if !fields[tag] {
			t.Errorf("schema missing column %s", tag)
		}
	}
	if !fields[PurchasePartitionField] {
		t.Fatalf("partition field %s not in schema", PurchasePartitionField)
	}
}
