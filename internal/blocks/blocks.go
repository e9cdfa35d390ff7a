// Package blocks models the structured body of an article as a closed set of
// block variants. Raw JSON is validated once at the parsing boundary; the rest
// of the pipeline switches on the concrete Go types.
package blocks

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the wire name of a block variant.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindList      Kind = "list"
	KindQuote     Kind = "quote"
	KindCallout   Kind = "callout"
	KindDivider   Kind = "divider"
	KindTable     Kind = "table"
	KindImage     Kind = "image"
)

// Block is implemented only by the variants in this package.
type Block interface {
	Kind() Kind
	sealed()
}

type Heading struct {
	Level int
	Text  string
}

type Paragraph struct {
	Text string
}

type List struct {
	Ordered bool
	Items   []string
}

type Quote struct {
	Text string
	Cite string
}

type Callout struct {
	Tone string
	Text string
}

type Divider struct{}

type Table struct {
	Headers []string
	Rows    [][]string
}

type Image struct {
	URL     string
	Alt     string
	Caption string
}

func (Heading) Kind() Kind   { return KindHeading }
func (Paragraph) Kind() Kind { return KindParagraph }
func (List) Kind() Kind      { return KindList }
func (Quote) Kind() Kind     { return KindQuote }
func (Callout) Kind() Kind   { return KindCallout }
func (Divider) Kind() Kind   { return KindDivider }
func (Table) Kind() Kind     { return KindTable }
func (Image) Kind() Kind     { return KindImage }

func (Heading) sealed()   {}
func (Paragraph) sealed() {}
func (List) sealed()      {}
func (Quote) sealed()     {}
func (Callout) sealed()   {}
func (Divider) sealed()   {}
func (Table) sealed()     {}
func (Image) sealed()     {}

// wire is the JSON shape of every block. Content and Style are accepted as
// aliases for Text and Ordered because model output uses them interchangeably.
type wire struct {
	Type    Kind       `json:"type"`
	Level   int        `json:"level,omitempty"`
	Text    string     `json:"text,omitempty"`
	Content string     `json:"content,omitempty"`
	Ordered bool       `json:"ordered,omitempty"`
	Style   string     `json:"style,omitempty"`
	Items   []string   `json:"items,omitempty"`
	Cite    string     `json:"cite,omitempty"`
	Tone    string     `json:"tone,omitempty"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	URL     string     `json:"url,omitempty"`
	Alt     string     `json:"alt,omitempty"`
	Caption string     `json:"caption,omitempty"`
}

func toWire(b Block) wire {
	switch v := b.(type) {
	case Heading:
		return wire{Type: KindHeading, Level: v.Level, Text: v.Text}
	case Paragraph:
		return wire{Type: KindParagraph, Text: v.Text}
	case List:
		return wire{Type: KindList, Ordered: v.Ordered, Items: v.Items}
	case Quote:
		return wire{Type: KindQuote, Text: v.Text, Cite: v.Cite}
	case Callout:
		return wire{Type: KindCallout, Tone: v.Tone, Text: v.Text}
	case Divider:
		return wire{Type: KindDivider}
	case Table:
		return wire{Type: KindTable, Headers: v.Headers, Rows: v.Rows}
	case Image:
		return wire{Type: KindImage, URL: v.URL, Alt: v.Alt, Caption: v.Caption}
	}
	panic(fmt.Sprintf("blocks: unknown variant %T", b))
}

func fromWire(w wire) (Block, error) {
	text := strings.TrimSpace(w.Text)
	if text == "" {
		text = strings.TrimSpace(w.Content)
	}

	switch Kind(strings.ToLower(string(w.Type))) {
	case KindHeading:
		if text == "" {
			return nil, errors.New("heading without text")
		}
		level := w.Level
		if level < 1 || level > 6 {
			level = 2
		}
		return Heading{Level: level, Text: text}, nil
	case KindParagraph:
		if text == "" {
			return nil, errors.New("paragraph without text")
		}
		return Paragraph{Text: text}, nil
	case KindList:
		items := make([]string, 0, len(w.Items))
		for _, item := range w.Items {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return nil, errors.New("list without items")
		}
		return List{Ordered: w.Ordered || strings.EqualFold(w.Style, "ordered") || strings.EqualFold(w.Style, "numbered"), Items: items}, nil
	case KindQuote:
		if text == "" {
			return nil, errors.New("quote without text")
		}
		return Quote{Text: text, Cite: strings.TrimSpace(w.Cite)}, nil
	case KindCallout:
		if text == "" {
			return nil, errors.New("callout without text")
		}
		tone := strings.TrimSpace(w.Tone)
		if tone == "" {
			tone = "info"
		}
		return Callout{Tone: tone, Text: text}, nil
	case KindDivider:
		return Divider{}, nil
	case KindTable:
		if len(w.Headers) == 0 && len(w.Rows) == 0 {
			return nil, errors.New("empty table")
		}
		return Table{Headers: w.Headers, Rows: w.Rows}, nil
	case KindImage:
		if strings.TrimSpace(w.URL) == "" {
			return nil, errors.New("image without url")
		}
		return Image{URL: strings.TrimSpace(w.URL), Alt: w.Alt, Caption: w.Caption}, nil
	case "":
		return nil, errors.New("block without type")
	default:
		return nil, fmt.Errorf("unknown block type %q", w.Type)
	}
}

// Issue describes a block dropped while parsing leniently.
type Issue struct {
	Index  int
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("block %d: %s", i.Index, i.Reason)
}

// ParseLenient decodes a JSON array of blocks, dropping the ones that fail
// validation and reporting them as issues. Only a malformed array is an error.
func ParseLenient(raw []byte) (Sequence, []Issue, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("decode blocks: %w", err)
	}

	seq := make(Sequence, 0, len(items))
	var issues []Issue
	for i, item := range items {
		var w wire
		if err := json.Unmarshal(item, &w); err != nil {
			issues = append(issues, Issue{Index: i, Reason: err.Error()})
			continue
		}
		b, err := fromWire(w)
		if err != nil {
			issues = append(issues, Issue{Index: i, Reason: err.Error()})
			continue
		}
		seq = append(seq, b)
	}
	return seq, issues, nil
}

// Sequence is an ordered article body.
type Sequence []Block

// MarshalJSON encodes the sequence with a "type" discriminator per block.
func (s Sequence) MarshalJSON() ([]byte, error) {
	out := make([]wire, 0, len(s))
	for _, b := range s {
		out = append(out, toWire(b))
	}
	return json.Marshal(out)
}

// UnmarshalJSON is strict: any invalid block fails the whole sequence.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	seq, issues, err := ParseLenient(data)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid %s", issues[0])
	}
	*s = seq
	return nil
}

func (s Sequence) Value() (driver.Value, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *Sequence) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = Sequence{}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("blocks: unsupported column type %T", value)
	}
}

// Count returns how many blocks of kind k the sequence holds.
func (s Sequence) Count(k Kind) int {
	n := 0
	for _, b := range s {
		if b.Kind() == k {
			n++
		}
	}
	return n
}

// PlainText renders the sequence as plain text, one block per paragraph.
func (s Sequence) PlainText() string {
	parts := make([]string, 0, len(s))
	for _, b := range s {
		switch v := b.(type) {
		case Heading:
			parts = append(parts, v.Text)
		case Paragraph:
			parts = append(parts, v.Text)
		case List:
			lines := make([]string, len(v.Items))
			for i, item := range v.Items {
				if v.Ordered {
					lines[i] = fmt.Sprintf("%d. %s", i+1, item)
				} else {
					lines[i] = "- " + item
				}
			}
			parts = append(parts, strings.Join(lines, "\n"))
		case Quote:
			if v.Cite != "" {
				parts = append(parts, fmt.Sprintf("\"%s\" (%s)", v.Text, v.Cite))
			} else {
				parts = append(parts, fmt.Sprintf("\"%s\"", v.Text))
			}
		case Callout:
			parts = append(parts, v.Text)
		case Divider:
			parts = append(parts, "---")
		case Table:
			rows := make([]string, 0, len(v.Rows)+1)
			if len(v.Headers) > 0 {
				rows = append(rows, strings.Join(v.Headers, " | "))
			}
			for _, r := range v.Rows {
				rows = append(rows, strings.Join(r, " | "))
			}
			parts = append(parts, strings.Join(rows, "\n"))
		case Image:
			if v.Caption != "" {
				parts = append(parts, v.Caption)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
