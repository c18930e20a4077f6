package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationError is a user-facing description of rejected modal or option input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// validateInput checks s against its struct tags and describes the first
// failing field.
func validateInput(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrInvalidInput
	}
	e := verrs[0]
	field := strings.ToLower(e.Field())
	var reason string
	switch e.Tag() {
	case "required":
		reason = "is required"
	case "min", "gte":
		reason = "must be at least " + e.Param()
	case "max", "lte":
		reason = "must be at most " + e.Param()
	case "gt":
		reason = "must be greater than " + e.Param()
	case "unique":
		reason = "must not repeat"
	default:
		reason = "is invalid"
	}
	return &ValidationError{Field: field, Reason: reason}
}

// parseAmount reads a positive whole number typed into a modal.
func parseAmount(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Reason: "must be a whole number"}
	}
	in := amountInput{Amount: n}
	if err := validateInput(in); err != nil {
		return 0, err
	}
	return n, nil
}

type amountInput struct {
	Amount int64 `validate:"gt=0"`
}

// BegInput is the beg request modal.
type BegInput struct {
	Title   string `validate:"required,max=100"`
	Message string `validate:"required,max=1000"`
}

// PredictionInput is the prediction create modal after parsing.
type PredictionInput struct {
	Title   string   `validate:"required,max=100"`
	Choices []string `validate:"min=2,max=5,dive,required,max=50"`
	Minutes int      `validate:"min=1,max=150"`
}

// parsePredictionInput reads the create modal. Choices are one per line.
func parsePredictionInput(title, choices, minutes string) (*PredictionInput, error) {
	in := &PredictionInput{Title: strings.TrimSpace(title)}
	for _, line := range strings.Split(choices, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			in.Choices = append(in.Choices, line)
		}
	}
	m, err := strconv.Atoi(strings.TrimSpace(minutes))
	if err != nil {
		return nil, &ValidationError{Field: "minutes", Reason: "must be a whole number"}
	}
	in.Minutes = m
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return in, nil
}

// LotteryInput is a list of ticket numbers.
type LotteryInput struct {
	Numbers []int `validate:"min=1,max=10,dive,min=0,max=99"`
}

// parseLotteryNumbers reads space or comma separated numbers.
func parseLotteryNumbers(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	in := LotteryInput{Numbers: make([]int, 0, len(fields))}
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, &ValidationError{Field: "numbers", Reason: fmt.Sprintf("contain %q which is not a number", f)}
		}
		in.Numbers = append(in.Numbers, n)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return in.Numbers, nil
}
