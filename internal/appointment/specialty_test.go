package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecialtyFor(t *testing.T) {
	assert.Equal(t, "ENDOCRINOLOGY", SpecialtyFor("DIABETES"))
	assert.Equal(t, "CARDIOLOGY", SpecialtyFor("HYPERTENSION"))
	assert.Equal(t, GeneralMedicine, SpecialtyFor("MALARIA"))
	assert.Equal(t, GeneralMedicine, SpecialtyFor("UNKNOWN_DISEASE"))
}

func TestSpecialtyMatches(t *testing.T) {
	assert.True(t, SpecialtyMatches("DIABETES", "ENDOCRINOLOGY"))
	assert.False(t, SpecialtyMatches("DIABETES", "CARDIOLOGY"))
	assert.True(t, SpecialtyMatches("DIABETES", GeneralMedicine), "a general practitioner may treat any disease")
	assert.True(t, SpecialtyMatches("OTHER", GeneralMedicine))
}
