package domain

import "errors"

// ErrScoreNotFound возвращается хранилищем оценок при отсутствии ключа.
var ErrScoreNotFound = errors.New("оценка настроения не найдена")
