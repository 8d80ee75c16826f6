package cart

import (
	"encoding/json"
	"fmt"
	"strings"
)

const stateVersion = 1

// persistedState формат блоба в носителе. Суммы не пишутся: при загрузке они
// пересчитываются по текущим ценам каталога.
type persistedState struct {
	Version      int             `json:"version"`
	Items        []persistedItem `json:"items"`
	DiscountCode string          `json:"discountCode,omitempty"`
}

type persistedItem struct {
	ProductRef string `json:"productRef"`
	Quantity   int    `json:"quantity"`
	Variant    string `json:"variant,omitempty"`
}

func encodeState(items []LineItem, code string) ([]byte, error) {
	st := persistedState{
		Version:      stateVersion,
		Items:        make([]persistedItem, 0, len(items)),
		DiscountCode: code,
	}
	for _, it := range items {
		st.Items = append(st.Items, persistedItem{ProductRef: it.ProductRef, Quantity: it.Quantity, Variant: it.Variant})
	}
	return json.Marshal(st)
}

// decodeState отклоняет блоб целиком, если он нарушает инварианты корзины.
// Версия 0 означает блоб без поля version, как его писал клиентский вариант корзины.
func decodeState(data []byte) ([]LineItem, string, error) {
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errMalformedState, err)
	}
	if st.Version != 0 && st.Version != stateVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", errMalformedState, st.Version)
	}
	items := make([]LineItem, 0, len(st.Items))
	seen := make(map[itemKey]struct{}, len(st.Items))
	for i, pi := range st.Items {
		if strings.TrimSpace(pi.ProductRef) == "" {
			return nil, "", fmt.Errorf("%w: item %d has no product reference", errMalformedState, i)
		}
		if pi.Quantity < 1 {
			return nil, "", fmt.Errorf("%w: item %d has quantity %d", errMalformedState, i, pi.Quantity)
		}
		li := LineItem{ProductRef: pi.ProductRef, Quantity: pi.Quantity, Variant: pi.Variant}
		if _, dup := seen[li.key()]; dup {
			return nil, "", fmt.Errorf("%w: duplicate item %q/%q", errMalformedState, pi.ProductRef, pi.Variant)
		}
		seen[li.key()] = struct{}{}
		items = append(items, li)
	}
	code := st.DiscountCode
	if canonical, _, ok := LookupDiscount(code); ok {
		code = canonical
	}
	return items, code, nil
}
