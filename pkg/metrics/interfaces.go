package metrics

import "context"

// Metric is a generic interface for any archived record
type Metric interface {
	// TableName returns ClickHouse table name for this metric
	TableName() string
	// Columns returns column names in the same order as Values
	Columns() []string
	// Values returns metric values in the same order as columns
	Values() []interface{}
}

// Writer writes metrics to storage (ClickHouse)
type Writer interface {
	// Write writes batch of metrics to storage
	Write(ctx context.Context, tableName string, metrics []Metric) error
	// Close closes writer
	Close() error
}
