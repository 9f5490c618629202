package core

// DefaultCategoryName is assigned to transactions and subscriptions when the
// oracle does not name a category.
const DefaultCategoryName = "Outros"

// DefaultInstallmentCategory is assigned to installment plans without a category.
const DefaultInstallmentCategory = "Compras"

// UnknownCategory is what display-time lookups resolve to when a category
// name no longer exists.
var UnknownCategory = Category{ID: "unknown", Name: DefaultCategoryName, Icon: "💸", Color: "#71717A"}

// Palette holds distinct colors handed out to new categories.
var Palette = []string{
	"#00DC82", "#3B82F6", "#F97316", "#A855F7",
	"#EF4444", "#EC4899", "#10B981", "#F59E0B",
	"#06B6D4", "#8B5CF6", "#F43F5E", "#6366F1",
	"#84CC16", "#14B8A6", "#D946EF", "#FB923C",
}

// DefaultCategories returns a fresh copy of the starter categories.
func DefaultCategories() []Category {
	return []Category{
		{ID: "1", Name: "Alimentação", Icon: "🍔", Color: "#F97316"},
		{ID: "2", Name: "Transporte", Icon: "🚗", Color: "#3B82F6"},
		{ID: "3", Name: "Lazer", Icon: "🎬", Color: "#A855F7"},
		{ID: "4", Name: "Saúde", Icon: "🏥", Color: "#EF4444"},
		{ID: "5", Name: "Educação", Icon: "📚", Color: "#10B981"},
		{ID: "6", Name: "Moradia", Icon: "🏠", Color: "#F59E0B"},
		{ID: "7", Name: "Compras", Icon: "🛍️", Color: "#EC4899"},
		{ID: "8", Name: "Salário", Icon: "💰", Color: "#00DC82"},
		{ID: "9", Name: "Outros", Icon: "📦", Color: "#71717A"},
	}
}
