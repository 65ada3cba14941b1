package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var en = map[string]string{
	"mode.retouch":   "retouch",
	"mode.fill":      "fill",
	"mode.adjust":    "adjustment",
	"mode.filter":    "filter",
	"mode.reference": "reference adjustment",
	"mode.faceswap":  "face swap",
	"mode.combine":   "combine",

	"failure.policy":    "The %s request was blocked by the content policy. Try a different image or instruction.",
	"failure.no_result": "The %s request did not produce an image. Try rephrasing your instruction.",
	"failure.generic":   "The %s failed. Please try again.",

	"validation.no_image":            "Upload an image first.",
	"validation.missing_instruction": "Describe the edit you want to make.",
	"validation.missing_hotspot":     "Click on the image to choose where to apply the edit.",
	"validation.missing_mask":        "Paint over the area you want to change.",
	"validation.missing_secondary":   "Upload a second image first.",
	"validation.missing_crop":        "Select the area to crop.",
	"validation.unknown_preset":      "Unknown filter preset.",

	"crop.failed": "The image could not be cropped.",
}

var de = map[string]string{
	"mode.retouch":   "Retusche",
	"mode.fill":      "Füllung",
	"mode.adjust":    "Anpassung",
	"mode.filter":    "Filter",
	"mode.reference": "Anpassung mit Referenzbild",
	"mode.faceswap":  "Gesichtstausch",
	"mode.combine":   "Kombination",

	"failure.policy":    "Die Anfrage (%s) wurde durch die Inhaltsrichtlinie blockiert. Versuche ein anderes Bild oder eine andere Anweisung.",
	"failure.no_result": "Die Anfrage (%s) hat kein Bild erzeugt. Formuliere die Anweisung um.",
	"failure.generic":   "%s fehlgeschlagen. Bitte versuche es erneut.",

	"validation.no_image":            "Lade zuerst ein Bild hoch.",
	"validation.missing_instruction": "Beschreibe die gewünschte Bearbeitung.",
	"validation.missing_hotspot":     "Klicke auf die Stelle im Bild, die bearbeitet werden soll.",
	"validation.missing_mask":        "Male über den Bereich, der geändert werden soll.",
	"validation.missing_secondary":   "Lade zuerst ein zweites Bild hoch.",
	"validation.missing_crop":        "Wähle den Bereich zum Zuschneiden aus.",
	"validation.unknown_preset":      "Unbekannte Filtervorlage.",

	"crop.failed": "Das Bild konnte nicht zugeschnitten werden.",
}

func init() {
	for key, msg := range en {
		if err := message.SetString(language.English, key, msg); err != nil {
			panic(err)
		}
	}
	for key, msg := range de {
		if err := message.SetString(language.German, key, msg); err != nil {
			panic(err)
		}
	}
}
