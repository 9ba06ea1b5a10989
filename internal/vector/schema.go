package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding filing chunks.
const ClassName = "FilingChunk"

// SchemaClient is the subset of Weaviate schema operations EnsureSchema needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func keyword(name string) *models.Property {
	return &models.Property{Name: name, DataType: []string{"text"}, Tokenization: "field"}
}

func typed(name, dataType string) *models.Property {
	return &models.Property{Name: name, DataType: []string{dataType}}
}

// Properties lists every FilingChunk property. Identifiers and labels use
// field tokenization so filters match whole values.
func Properties() []*models.Property {
	props := []*models.Property{
		keyword("chunk_id"),
		keyword("ticker"),
		keyword("section_type"),
		keyword("industry"),
		keyword("sector"),
		keyword("cik"),
		keyword("commission_file_number"),
		keyword("exchange"),
		{Name: "ticker_symbols", DataType: []string{"text[]"}, Tokenization: "field"},
		typed("company_name", "text"),
		typed("content", "text"),
		typed("chunk_index", "int"),
		typed("filing_year", "int"),
		typed("employees", "int"),
		typed("ingestion_timestamp", "date"),
	}
	for _, n := range []string{
		"revenue", "gross_profit", "operating_income", "net_income",
		"total_assets", "total_liabilities", "shareholders_equity", "cash_and_equivalents",
		"gross_margin", "operating_margin", "net_margin", "roe", "roa",
		"revenue_per_employee", "debt_to_equity",
	} {
		props = append(props, typed(n, "number"))
	}
	return props
}

// EnsureSchema creates the FilingChunk class, or adds any properties an
// existing class is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("check class %s: %w", ClassName, err)
	}

	properties := Properties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       ClassName,
			Description: "A section-tagged chunk of a 10-K filing with the filing's extracted facts",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("get class %s: %w", ClassName, err)
	}

	have := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		have[p.Name] = true
	}
	for _, p := range properties {
		if have[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ClassName, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}

// SchemaAdapter exposes a Weaviate client as a SchemaClient.
type SchemaAdapter struct {
	client *weaviate.Client
}

func NewSchemaAdapter(client *weaviate.Client) *SchemaAdapter {
	return &SchemaAdapter{client: client}
}

func (a *SchemaAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *SchemaAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *SchemaAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *SchemaAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}
