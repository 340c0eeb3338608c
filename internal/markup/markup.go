// Package markup holds the names shared between the classifier and the companion
// stylesheet. Both sides must change together; bump StylesheetVersion when they do.
package markup

// StylesheetVersion identifies the class/attribute contract below.
const StylesheetVersion = "1.5.1"

// StyleID is the id of the injected <style> element.
const StyleID = "adsift-styles"

// Host page markers (consumed).
const (
	// BubbleClass marks one message container.
	BubbleClass = "bubble"
	// SponsoredMessageClass is the platform's own sponsored-message class.
	SponsoredMessageClass = "sponsored-message"

	BubbleSelector        = "." + BubbleClass
	MessageSelector       = ".message"
	ContentSelector       = ".bubble-content"
	LinkSelector          = "a"
	SponsorLabelSelector  = "[class*='sponsor']"
	SponsorLabelSubstring = "sponsor"
)

// Annotations (produced).
const (
	SponsoredClass     = "is-sponsored"
	SponsoredAttr      = "data-is-sponsored"
	ProcessedAttr      = "data-ad-processed"
	KeywordAdClass     = "has-advertisement"
	AnnotationClass    = "advertisement"
	AnnotationTag      = "div"
	AnnotationTemplate = "Hidden by filter for <%s>"
)

// Stylesheet suppresses sponsored bubbles outright and hides the content of
// keyword-flagged bubbles while leaving the bubble itself in place.
const Stylesheet = `
.bubble.is-sponsored,
.bubble[data-is-sponsored="true"],
.sponsored-message {
  display: none !important;
}

.bubble.has-advertisement .attachment {
  display: none;
}

.bubble.has-advertisement .message {
  display: none;
}

.bubble.has-advertisement replies-element.replies-footer {
  display: none;
}

.bubble.has-advertisement .bubble-beside-button.forward {
  display: none;
}

.advertisement {
  opacity: 0.7;
  font-size: 0.9em;
  display: block;
  padding: 0.5rem 1rem;
  cursor: pointer;
  white-space: nowrap;
  font-style: italic;
  font-weight: var(--font-weight-bold);
  color: var(--secondary-text-color);
}
`
