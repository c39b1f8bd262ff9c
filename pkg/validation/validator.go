package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// EngineConfig holds the runtime-adjustable tunables of the storage engine.
// Threshold constants (TieringThreshold, LazyLevelingThreshold) are fixed by
// policy and validated but not meant to be exposed as setters.
type EngineConfig struct {
	BufferCapacityBytes   int64   `validate:"required,min=1"`
	SizeRatio             int     `validate:"required,min=2"`
	InitialMaxLevel       int     `validate:"required,min=1"`
	TieringThreshold      int     `validate:"required,min=2"`
	LazyLevelingThreshold int     `validate:"required,min=2"`
	TotalFPR              float64 `validate:"required,gt=0,lte=1"`
	PageSize              int     `validate:"required,min=64"`
	MaxSkipListHeight     int     `validate:"required,min=1,max=64"`
	CompactionEnabled     bool
}

// DefaultEngineConfig returns the tunables named in the tuning table: a 4 MiB
// buffer, size ratio 4, six initial levels, tiering threshold 4, lazy
// leveling threshold 3, a total target false positive rate of 1.0, 4096 byte
// pages, and a 32-level skip list.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BufferCapacityBytes:   4 * 1024 * 1024,
		SizeRatio:             4,
		InitialMaxLevel:       6,
		TieringThreshold:      4,
		LazyLevelingThreshold: 3,
		TotalFPR:              1.0,
		PageSize:              4096,
		MaxSkipListHeight:     32,
		CompactionEnabled:     true,
	}
}

// Validate checks an EngineConfig against struct tags and cross-field rules
// that the tags alone cannot express.
func (c EngineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	return NewConfigValidator("EngineConfig").
		Custom("LazyLevelingThreshold", func() error {
			if c.LazyLevelingThreshold >= c.TieringThreshold {
				return errors.New("lazy leveling threshold must be lower than the tiering threshold")
			}
			return nil
		}).
		Custom("PageSize", func() error {
			if c.PageSize&(c.PageSize-1) != 0 {
				return errors.New("page size must be a power of two")
			}
			return nil
		}).
		Validate()
}

// ValidateBufferCapacity rejects a malformed buffer capacity at the setter,
// per the invalid-argument error kind.
func ValidateBufferCapacity(bytes int64) error {
	if bytes <= 0 {
		return fmt.Errorf("buffer_capacity_bytes: must be positive, got %d", bytes)
	}
	return nil
}

// ValidateTargetFPR rejects a malformed target false-positive rate.
func ValidateTargetFPR(fpr float64) error {
	if fpr <= 0 || fpr > 1 {
		return fmt.Errorf("total_fpr: must be in (0, 1], got %f", fpr)
	}
	return nil
}

// formatValidationError converts validator errors into a single readable message.
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "lte":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
