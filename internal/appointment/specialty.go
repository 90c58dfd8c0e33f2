package appointment

// Specialty match is one of C6's atomic invariants: a patient's disease
// maps to exactly one required specialty, or the doctor practices
// GENERAL_MEDICINE and may see anyone.
const GeneralMedicine = "GENERAL_MEDICINE"

// diseaseToSpecialty is the authoritative Disease→Specialty table.
var diseaseToSpecialty = map[string]string{
	"DIABETES":                "ENDOCRINOLOGY",
	"HYPERTENSION":            "CARDIOLOGY",
	"ASTHMA":                  "PULMONOLOGY",
	"HEART_DISEASE":           "CARDIOLOGY",
	"ARTHRITIS":               "ORTHOPEDICS",
	"CANCER":                  "ONCOLOGY",
	"TUBERCULOSIS":            "PULMONOLOGY",
	"COVID_19":                "PULMONOLOGY",
	"PNEUMONIA":               "PULMONOLOGY",
	"MALARIA":                 GeneralMedicine,
	"DENGUE":                  GeneralMedicine,
	"TYPHOID":                 GeneralMedicine,
	"KIDNEY_DISEASE":          "NEPHROLOGY",
	"LIVER_DISEASE":           "GASTROENTEROLOGY",
	"THYROID_DISORDER":        "ENDOCRINOLOGY",
	"MENTAL_HEALTH_DISORDER":  "PSYCHIATRY",
	"SKIN_DISEASE":            "DERMATOLOGY",
	"EYE_DISEASE":             "OPHTHALMOLOGY",
	"ENT_DISORDER":            "ENT",
	"NEUROLOGICAL_DISORDER":   "NEUROLOGY",
	"GASTROINTESTINAL_DISORDER": "GASTROENTEROLOGY",
	"RESPIRATORY_DISORDER":    "PULMONOLOGY",
	"BONE_FRACTURE":           "ORTHOPEDICS",
	"OTHER":                   GeneralMedicine,
}

// SpecialtyFor looks up the required specialty for a disease, falling
// back to GENERAL_MEDICINE for anything not in the table (matching
// OTHER's mapping).
func SpecialtyFor(disease string) string {
	if s, ok := diseaseToSpecialty[disease]; ok {
		return s
	}
	return GeneralMedicine
}

// SpecialtyMatches reports whether a doctor of the given specialty may
// treat a patient with the given disease.
func SpecialtyMatches(disease, doctorSpecialty string) bool {
	if doctorSpecialty == GeneralMedicine {
		return true
	}
	return SpecialtyFor(disease) == doctorSpecialty
}
