package analyzer

// stopwords is the embedded English + Kinyarwanda stopword set.
// Tokens in this set are dropped unless they are also color or brand
// tokens, which always survive.
var stopwords = map[string]bool{
	// English
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"was": true, "were": true, "is": true, "are": true, "been": true,
	"has": true, "have": true, "had": true, "it": true, "its": true,
	"my": true, "his": true, "her": true, "their": true, "our": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "we": true,
	"they": true, "me": true, "him": true, "them": true, "us": true,
	"near": true, "around": true, "inside": true, "lost": true,
	"found": true, "item": true, "please": true, "help": true,
	// Kinyarwanda
	"na": true, "mu": true, "ku": true, "ya": true, "wa": true,
	"ba": true, "cya": true, "bya": true, "iyo": true, "uyu": true,
	"iki": true, "ibi": true, "uwo": true, "abo": true, "aha": true,
	"hafi": true, "kuri": true, "muri": true, "yanjye": true,
	"yawe": true, "yabo": true, "nibyo": true, "cyane": true,
	"yabuze": true, "yabonetse": true,
}

// colors is the closed color lexicon, English and Kinyarwanda. Color
// tokens are always retained regardless of length or stopword status.
var colors = map[string]bool{
	"black": true, "white": true, "red": true, "blue": true,
	"green": true, "yellow": true, "orange": true, "purple": true,
	"pink": true, "brown": true, "grey": true, "gray": true,
	"silver": true, "gold": true, "navy": true, "beige": true,
	"maroon": true, "cream": true, "tan": true,
	"umukara": true, "umweru": true, "umutuku": true, "ubururu": true,
	"icyatsi": true, "umuhondo": true, "ikigina": true,
}

// brands is the closed brand lexicon covering the devices and carriers
// common on Kigali transit. Brand tokens are always retained.
var brands = map[string]bool{
	"iphone": true, "apple": true, "samsung": true, "tecno": true,
	"infinix": true, "itel": true, "huawei": true, "xiaomi": true,
	"redmi": true, "oppo": true, "nokia": true, "google": true,
	"pixel": true, "oneplus": true, "lg": true, "sony": true,
	"lenovo": true, "hp": true, "dell": true, "asus": true, "acer": true,
	"toshiba": true, "jbl": true, "mtn": true, "airtel": true,
	"visa": true, "mastercard": true, "equity": true, "bk": true,
}

// districts is the closed district table for Kigali: district name to
// the areas under it. Area distance 2 means same district.
var districts = map[string][]string{
	"gasabo": {
		"kimironko", "remera", "kacyiru", "kimihurura", "gisozi",
		"nyarutarama", "kibagabaga", "kinyinya", "ndera", "bumbogo",
	},
	"kicukiro": {
		"kicukiro", "kanombe", "gatenga", "kagarama", "niboye",
		"nyarugunga", "gikondo", "gahanga",
	},
	"nyarugenge": {
		"nyamirambo", "muhima", "kiyovu", "gitega", "kimisagara",
		"nyakabanda", "rwezamenyo", "mageragere",
	},
}

// adjacency lists neighboring areas. Rows are one-directional on disk;
// lookups must consult both directions.
var adjacency = map[string][]string{
	"kimironko":  {"remera", "kibagabaga", "nyarutarama"},
	"remera":     {"kacyiru", "kanombe", "nyarutarama"},
	"kacyiru":    {"kimihurura", "gisozi"},
	"kimihurura": {"kiyovu"},
	"gikondo":    {"gatenga", "kicukiro"},
	"kicukiro":   {"niboye", "gatenga"},
	"kanombe":    {"nyarugunga"},
	"nyamirambo": {"kimisagara", "nyakabanda", "rwezamenyo"},
	"muhima":     {"kiyovu", "gitega", "kimisagara"},
	"gisozi":     {"kinyinya"},
	"kagarama":   {"gatenga", "niboye"},
	"gitega":     {"kimisagara"},
}

// areaDistrict is the reverse index of districts, built at package init.
var areaDistrict = func() map[string]string {
	idx := make(map[string]string)
	for district, areas := range districts {
		for _, area := range areas {
			idx[area] = district
		}
	}
	return idx
}()
