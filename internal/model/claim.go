package model

// QueryVariant is a translated or expanded search string for one claim
type QueryVariant struct {
	ClaimHash string      `json:"claim_hash"`
	Text      string      `json:"text"`
	Lang      string      `json:"lang"` // "orig" for the claim itself, otherwise an ISO code
	Kind      VariantKind `json:"kind"`
}

// VariantKind tells where a query variant came from
type VariantKind string

const (
	VariantOriginal   VariantKind = "original"
	VariantTranslated VariantKind = "translated"
	VariantParaphrase VariantKind = "paraphrase"
)
