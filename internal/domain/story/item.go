package story

import "fmt"

// Completion-evidence fields of an artifact item, in pipeline order.
const (
	FieldExtractedDescription = "extracted_description"
	FieldRenderedPrompt       = "rendered_prompt"
	FieldArtifactReference    = "artifact_reference"
)

// ItemFields is the canonical ordered list of item output fields.
var ItemFields = []string{
	FieldExtractedDescription,
	FieldRenderedPrompt,
	FieldArtifactReference,
}

// Item is one scene going through extract -> prompt -> render. A populated
// field is treated as immutable proof that its stage has run.
type Item struct {
	CollectionID int
	UnitIndex    int
	ItemIndex    int
	Fields       map[string]string
	LastError    string
}

// ID renders a stable identifier such as ch01_a02_s03.
func (i Item) ID() string {
	return fmt.Sprintf("ch%02d_a%02d_s%02d", i.CollectionID, i.UnitIndex, i.ItemIndex)
}

// Has reports whether field is populated.
func (i Item) Has(field string) bool {
	return i.Fields[field] != ""
}

// Get returns the field value or "".
func (i Item) Get(field string) string {
	return i.Fields[field]
}

// Set populates a field on the in-memory item.
func (i *Item) Set(field, value string) {
	if i.Fields == nil {
		i.Fields = make(map[string]string)
	}
	i.Fields[field] = value
}

// Done reports whether every canonical field is populated.
func (i Item) Done() bool {
	for _, f := range ItemFields {
		if !i.Has(f) {
			return false
		}
	}
	return true
}

// Vote holds the plot direction options generated for a collection.
type Vote struct {
	CollectionID int
	Options      [3]string
	WinningText  string
}
