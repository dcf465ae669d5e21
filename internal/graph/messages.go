package graph

// User-facing copy for engine-produced outcomes, keyed by locale. This is the
// single taxonomy-to-message mapping every node shares; handlers never format
// their own error text.
var fallbackMessages = map[string]string{
	"en": "Sorry, something went wrong. Please try again.",
	"hi": "माफ़ कीजिए, कुछ गड़बड़ हो गई। कृपया फिर से कोशिश करें।",
}

var chatMessages = map[string]string{
	"en": "I can help with horoscopes, kundli, PNR and train status, weather, news and reminders. What would you like to know?",
	"hi": "मैं राशिफल, कुंडली, PNR और ट्रेन स्थिति, मौसम, समाचार और रिमाइंडर में मदद कर सकता हूँ। आप क्या जानना चाहेंगे?",
}

var unavailableMessages = map[string]string{
	"en": "That feature is not enabled here yet. Send \"help\" to see what I can do.",
	"hi": "यह सुविधा अभी यहाँ उपलब्ध नहीं है। \"help\" भेजकर देखें कि मैं क्या कर सकता हूँ।",
}

var helpMessages = map[string]string{
	"en": "Here is what I can do:\n- Daily horoscopes and birth charts (try \"Aries horoscope\")\n- PNR and live train status (try \"PNR 1234567890\")\n- Weather, news and reminders (try \"weather in Mumbai\")\n- Word games (try \"play a game\")",
	"hi": "मैं यह कर सकता हूँ:\n- दैनिक राशिफल और जन्म कुंडली\n- PNR और ट्रेन की लाइव स्थिति\n- मौसम, समाचार और रिमाइंडर\n- वर्ड गेम",
}

func fallbackMessage(locale string) string {
	if msg, ok := fallbackMessages[locale]; ok {
		return msg
	}
	return fallbackMessages["en"]
}

func chatMessage(locale string) string {
	if msg, ok := chatMessages[locale]; ok {
		return msg
	}
	return chatMessages["en"]
}

func unavailableMessage(locale string) string {
	if msg, ok := unavailableMessages[locale]; ok {
		return msg
	}
	return unavailableMessages["en"]
}

func helpMessage(locale string) string {
	if msg, ok := helpMessages[locale]; ok {
		return msg
	}
	return helpMessages["en"]
}
