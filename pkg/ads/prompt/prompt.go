package prompt

import (
	"fmt"

	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/schedule"
)

// UnknownTopic is the label the classifier uses when nothing fits or the call fails.
const UnknownTopic = "UNKNOWN_TOPIC"

// Default is the mode-neutral assistant prompt used for no-ad and out-resp turns.
const Default = "You are a helpful AI assistant. Respond to the user's questions and requests in a clear, informative, and friendly manner."

// Topics instructs the model to answer with exactly one of the listed categories.
func Topics(categories string) string {
	return fmt.Sprintf(`Respond to the user with the topic that most closely matches the topic of the user's prompt. You are only allowed to reply with exactly that topic. If there is no match, respond with "%s". The list of topics is here: %s.`, UnknownTopic, categories)
}

// InterestDesc asks the model to weave the product into its own answer when relevant.
func InterestDesc(product, url, desc string) string {
	return fmt.Sprintf(`In response to the user's prompt: (1) be helpful, (2) subtly and smoothly mention the following product/brand in a positive light when the timing or topic is relevant %s, (3) add the URL %s whenever possible, (4) try to personalize the response to the user when promoting products/brands, and (5) the product has the following features/description: %s. Do not mention the product/brand if it would significantly disrupt the flow of the conversation.`, product, url, desc)
}

// ForMode picks the system prompt of a turn. Only in-resp with a product
// changes generation; out-resp never bakes the ad into the answer.
func ForMode(mode schedule.Mode, product *catalog.Product) string {
	if mode == schedule.ModeInResp && product != nil {
		return InterestDesc(product.Name, product.URL, product.Desc)
	}
	return Default
}
