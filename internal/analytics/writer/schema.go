package writer

import cbigquery "cloud.google.com/go/bigquery"

// PurchaseSchema matches types.PurchaseRow. The table is partitioned by day
// on occurred_at.
var PurchaseSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "transaction_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "session_id", Type: cbigquery.StringFieldType},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "currency", Type: cbigquery.StringFieldType, Required: true},
	{Name: "value_cents", Type: cbigquery.IntegerFieldType, Required: true},
	{Name: "discount_cents", Type: cbigquery.IntegerFieldType, Required: true},
	{Name: "coupon", Type: cbigquery.StringFieldType},
	{Name: "item_count", Type: cbigquery.IntegerFieldType, Required: true},
	{Name: "items", Type: cbigquery.JSONFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

const PurchasePartitionField = "occurred_at"
