package fraud

import "strings"

// paymentTerms and conditionalTerms drive the extortion heuristic on
// claim messages. A message is flagged only when it carries at least
// one term from EACH list; flagging never hard-gates delivery.
var paymentTerms = []string{
	"money",
	"pay",
	"payment",
	"cash",
	"amafaranga",
	"mobile money",
	"momo",
	"airtel money",
	"mtn money",
	"fee",
	"reward",
	"deposit",
	"francs",
	"frw",
	"rwf",
}

var conditionalTerms = []string{
	"before i",
	"before you",
	"first",
	"unless",
	"if you want",
	"only if",
	"until you",
	"or else",
	"mbere",
	"niba ushaka",
}

// FlagMessage scans a claim message body for the payment/conditional
// extortion pattern. It returns whether the body should be flagged and
// the matched terms, payment terms first.
func FlagMessage(body string) (bool, []string) {
	lower := strings.ToLower(body)

	var payment, conditional []string
	for _, term := range paymentTerms {
		if containsTerm(lower, term) {
			payment = append(payment, term)
		}
	}
	for _, term := range conditionalTerms {
		if containsTerm(lower, term) {
			conditional = append(conditional, term)
		}
	}
	if len(payment) == 0 || len(conditional) == 0 {
		return false, nil
	}
	return true, append(payment, conditional...)
}

// containsTerm matches a term at word boundaries so that "pay" does not
// fire on "repay" or "payload".
func containsTerm(text, term string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], term)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(term)
		beforeOK := idx == 0 || !isWordChar(text[idx-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
