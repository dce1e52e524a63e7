package keyword

import (
	"context"
	"fmt"

	"mood-pipeline/internal/domain"
)

// Слова по умолчанию для шести секций настроения, от самой низкой к самой высокой.
var staticWords = [domain.SectionCount]string{
	"подавленность",
	"грусть",
	"усталость",
	"спокойствие",
	"радость",
	"восторг",
}

// Static подбирает ключевое слово по фиксированной таблице секций.
// Используется как запасной вариант при недоступности внешнего сервиса.
type Static struct{}

var _ domain.KeywordPicker = (*Static)(nil)

// NewStatic создаёт статический подборщик.
func NewStatic() *Static {
	return &Static{}
}

// PickKeyword возвращает слово секции. Ошибается только на неизвестной секции.
func (s *Static) PickKeyword(_ context.Context, section int, _ float64) (string, error) {
	if section < 1 || section > domain.SectionCount {
		return "", fmt.Errorf("неизвестная секция %d", section)
	}
	return staticWords[section-1], nil
}
