package entities

import "github.com/unified-ai/core/internal/storage"

// kindMap maps upstream NER label conventions onto the canonical kind
// enum. Labels not listed here collapse to "other".
var kindMap = map[string]storage.EntityKind{
	"PERSON":  storage.EntityPerson,
	"ORG":     storage.EntityOrg,
	"DATE":    storage.EntityDate,
	"TIME":    storage.EntityDate,
	"MONEY":   storage.EntityMoney,
	"GPE":     storage.EntityGeopolitical,
	"PRODUCT": storage.EntityProduct,
}

// CanonicalKind maps a source-specific NER label to the canonical kind.
func CanonicalKind(label string) storage.EntityKind {
	if kind, ok := kindMap[label]; ok {
		return kind
	}
	return storage.EntityOther
}
