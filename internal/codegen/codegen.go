// Package codegen выпускает короткие коды для ссылок.
//
// Код получается кодированием криптографически случайного числа через sqids
// в алфавите без визуально похожих символов (0 O 1 l I). Длина кода от MinLength до MaxLength.
// Уникальность кода не гарантируется, за неё отвечает хранилище.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/sqids/sqids-go"
)

const (
	// Alphabet перемешанный алфавит без 0, O, 1, l, I
	Alphabet = "k3G7QAe5FCsiWrNYBUwM6XzZvdLT4j9JhyHKg2cVbxfERqmSo8DpunPat"
	// MinLength минимальная длина кода
	MinLength = 6
	// MaxLength максимальная длина кода
	MaxLength = 8
	// MaxAttempts сколько кодов всего хранилище пробует для одной ссылки
	MaxAttempts = 5
)

// ErrEntropy возвращается, если источник случайности не отдал данные
var ErrEntropy = errors.New("codegen: entropy source failed")

// Generator выпускает кандидатов в короткие коды
type Generator interface {
	Generate() (string, error)
}

// Sqids генератор на базе sqids
type Sqids struct {
	sq      *sqids.Sqids
	space   *big.Int
	entropy io.Reader
}

// Option настройка генератора
type Option func(*Sqids)

// WithEntropy подменяет источник случайности (нужно в тестах)
func WithEntropy(r io.Reader) Option {
	return func(s *Sqids) {
		s.entropy = r
	}
}

// New создаёт генератор
func New(opts ...Option) (*Sqids, error) {
	sq, err := sqids.New(sqids.Options{
		Alphabet:  Alphabet,
		MinLength: MinLength,
	})
	if err != nil {
		return nil, fmt.Errorf("codegen: init sqids: %w", err)
	}

	g := &Sqids{
		sq:      sq,
		space:   codeSpace(),
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate возвращает новый код длиной от MinLength до MaxLength
func (g *Sqids) Generate() (string, error) {
	n, err := rand.Int(g.entropy, g.space)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}

	code, err := g.sq.Encode([]uint64{n.Uint64()})
	if err != nil {
		return "", fmt.Errorf("codegen: encode: %w", err)
	}
	if len(code) < MinLength || len(code) > MaxLength {
		return "", fmt.Errorf("codegen: code %q has unexpected length %d", code, len(code))
	}
	return code, nil
}

// codeSpace количество чисел, которые sqids укладывает в MaxLength символов.
// Первый символ кода служит префиксом, остальные кодируют число в алфавите на один символ короче.
func codeSpace() *big.Int {
	base := big.NewInt(int64(len(Alphabet) - 1))
	return new(big.Int).Exp(base, big.NewInt(MaxLength-1), nil)
}

// IsValid проверяет, что строка может быть кодом: длина и символы алфавита
func IsValid(code string) bool {
	if len(code) < MinLength || len(code) > MaxLength {
		return false
	}
	for _, c := range code {
		if !inAlphabet(c) {
			return false
		}
	}
	return true
}

func inAlphabet(c rune) bool {
	for _, a := range Alphabet {
		if a == c {
			return true
		}
	}
	return false
}
