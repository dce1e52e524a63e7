package domain

// Границы секций настроения. Нижняя граница включается в секцию.
var sectionBounds = [...]float64{16, 33, 50, 66, 83}

// SectionCount — количество секций настроения.
const SectionCount = 6

// DefaultScore — начальная оценка настроения нового пользователя.
const DefaultScore = 50

// SectionForScore переводит среднюю оценку в одну из шести секций (1..6).
// Функция чистая: секция нигде не хранится отдельно от owning-записи.
func SectionForScore(avg float64) int {
	section := 1
	for _, bound := range sectionBounds {
		if avg >= bound {
			section++
		}
	}
	return section
}
