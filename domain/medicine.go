package domain

// AlternativeMapping declares Target as an acceptable substitute for Source.
type AlternativeMapping struct {
	ID     int64  `db:"id" json:"id"`
	Source string `db:"medicine_name" json:"medicine_name"`
	Target string `db:"alternative_name" json:"alternative_name"`
}
