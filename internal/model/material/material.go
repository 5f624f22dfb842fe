package material

import "time"

// Material is one study document a user can bring into a break conversation.
type Material struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folderId,omitempty"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // note, pdf, link
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Seed returns a small default material set for development setups.
func Seed() []Material {
	now := time.Now().UTC()
	return []Material{
		{
			ID:        "mat-calculus-limits",
			FolderID:  "folder-math",
			Name:      "Limits cheat sheet",
			Kind:      "note",
			Content:   "A limit describes the value a function approaches as the input approaches some point. Key rules: sum, product, quotient, squeeze theorem.",
			CreatedAt: now,
		},
		{
			ID:        "mat-spanish-verbs",
			FolderID:  "folder-languages",
			Name:      "Irregular Spanish verbs",
			Kind:      "note",
			Content:   "Ser, estar, ir, tener, hacer. Preterite forms are the usual stumbling block: fui, estuve, tuve, hice.",
			CreatedAt: now,
		},
	}
}
