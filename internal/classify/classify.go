// Package classify decides, once per message container, whether it is an official
// sponsored message, a keyword ad, or clean, and applies the matching markers.
package classify

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/dom"
	"github.com/hpungsan/adsift/internal/keywords"
	"github.com/hpungsan/adsift/internal/markup"
	"github.com/hpungsan/adsift/internal/metrics"
)

// State is the per-node classification state. A node leaves Unprocessed exactly
// once and never changes state afterwards.
type State int

const (
	Unprocessed State = iota
	Sponsored
	KeywordFlagged
	Clean
)

func (s State) String() string {
	switch s {
	case Unprocessed:
		return "unprocessed"
	case Sponsored:
		return "sponsored"
	case KeywordFlagged:
		return "keyword"
	case Clean:
		return "clean"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type stateKey struct{}

// StateOf returns the node's classification state. Nodes that arrive already
// carrying the processed marker (for example a page saved after filtering) are
// reported from their markers.
func StateOf(node dom.Node) State {
	if node == nil {
		return Unprocessed
	}
	if s, ok := node.Value(stateKey{}).(State); ok {
		return s
	}
	if v, ok := node.Attr(markup.ProcessedAttr); !ok || v == "" {
		return Unprocessed
	}
	switch {
	case node.HasClass(markup.SponsoredClass) || node.HasAttr(markup.SponsoredAttr):
		return Sponsored
	case node.HasClass(markup.KeywordAdClass) || node.Query(markup.ContentSelector+" > ."+markup.AnnotationClass) != nil:
		return KeywordFlagged
	}
	return Clean
}

// IsOfficialSponsored reports whether the platform itself marked node as
// sponsored: one of the sponsored classes or attribute, or a sponsor label whose
// text mentions "sponsor". Only the first sponsor-classed descendant is checked.
func IsOfficialSponsored(node dom.Node) bool {
	if node.HasClass(markup.SponsoredClass) ||
		node.HasAttr(markup.SponsoredAttr) ||
		node.HasClass(markup.SponsoredMessageClass) {
		return true
	}
	label := node.Query(markup.SponsorLabelSelector)
	if label == nil {
		return false
	}
	return strings.Contains(strings.ToLower(label.TextContent()), markup.SponsorLabelSubstring)
}

// Outcome reports what one Classify call did.
type Outcome struct {
	State State `json:"state"`
	// Keyword is the matched keyword for KeywordFlagged nodes.
	Keyword string `json:"keyword,omitempty"`
	// Annotated is false for a flagged node with no content container.
	Annotated bool `json:"annotated,omitempty"`
	// Skipped is set when the call changed nothing: the node was not a message
	// container or had been processed before.
	Skipped bool `json:"skipped,omitempty"`
}

// Classifier applies classification to message containers.
type Classifier struct {
	log zerolog.Logger
}

// New returns a Classifier.
func New(log zerolog.Logger) *Classifier {
	return &Classifier{log: log}
}

// Classify processes node against set. It never fails: missing sub-elements are
// normal shape variations and end in Clean. Calling it again on the same node is
// a no-op.
func (c *Classifier) Classify(node dom.Node, set *keywords.Set) Outcome {
	if node == nil || !node.IsElement() || !node.HasClass(markup.BubbleClass) {
		return Outcome{Skipped: true}
	}
	if s := StateOf(node); s != Unprocessed {
		return Outcome{State: s, Skipped: true}
	}
	node.SetAttr(markup.ProcessedAttr, "1")

	if IsOfficialSponsored(node) {
		node.AddClass(markup.SponsoredClass)
		node.SetAttr(markup.SponsoredAttr, "true")
		return c.finish(node, Outcome{State: Sponsored})
	}

	message := node.Query(markup.MessageSelector)
	if message == nil {
		return c.finish(node, Outcome{State: Clean})
	}
	text := message.TextContent()
	var links []string
	for _, a := range message.QueryAll(markup.LinkSelector) {
		if href := a.Href(); href != "" {
			links = append(links, href)
		}
	}
	keyword, ok := set.Match(text, links)
	if !ok {
		return c.finish(node, Outcome{State: Clean})
	}

	out := Outcome{State: KeywordFlagged, Keyword: keyword}
	if content := node.Query(markup.ContentSelector); content != nil {
		content.Prepend(newAnnotation(node, keyword))
		out.Annotated = true
	}
	node.AddClass(markup.KeywordAdClass)
	return c.finish(node, out)
}

func (c *Classifier) finish(node dom.Node, out Outcome) Outcome {
	node.SetValue(stateKey{}, out.State)
	metrics.ClassifiedNodes.WithLabelValues(out.State.String()).Inc()
	if out.State != Clean {
		c.log.Debug().
			Str("state", out.State.String()).
			Str("keyword", out.Keyword).
			Msg("message classified")
	}
	return out
}

// newAnnotation builds the clickable placeholder. Clicking it toggles the
// keyword-ad class on bubble, revealing or re-hiding the content.
func newAnnotation(bubble dom.Node, keyword string) dom.Node {
	ann := bubble.CreateElement(markup.AnnotationTag)
	ann.AddClass(markup.AnnotationClass)
	ann.SetTextContent(fmt.Sprintf(markup.AnnotationTemplate, keyword))
	ann.AddEventListener("click", func() {
		bubble.ToggleClass(markup.KeywordAdClass)
	})
	return ann
}
