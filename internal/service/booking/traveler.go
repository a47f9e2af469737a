package booking

import (
	"encoding/json"
	"strconv"

	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/domain"
)

// TravelerInput is either an already provider-shaped traveler (Raw) or the
// flat fields collected by the checkout form. Exactly one representation is
// expected per entry; Raw wins when both are present.
type TravelerInput struct {
	Raw json.RawMessage `json:"raw,omitempty"`

	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	Gender         string `json:"gender"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	PassportNumber string `json:"passport_number"`
	PassportExpiry string `json:"passport_expiry"`
	Nationality    string `json:"nationality"`
}

// NormalizeTravelers adapts checkout input into the provider traveler shape
// and the rows persisted with the booking. The primary traveler must resolve
// to a first name; secondary fields stay permissive.
func NormalizeTravelers(inputs []TravelerInput) ([]amadeus.Traveler, []domain.Traveler, error) {
	gdsTravelers := make([]amadeus.Traveler, 0, len(inputs))
	rows := make([]domain.Traveler, 0, len(inputs))

	for i, input := range inputs {
		traveler, err := normalizeOne(input, i)
		if err != nil {
			return nil, nil, err
		}
		gdsTravelers = append(gdsTravelers, traveler)
		rows = append(rows, toRow(traveler))
	}

	if gdsTravelers[0].Name.FirstName == "" {
		return nil, nil, domain.NewValidationError("travelers", "primary traveler first name is required")
	}
	return gdsTravelers, rows, nil
}

func normalizeOne(input TravelerInput, index int) (amadeus.Traveler, error) {
	if len(input.Raw) > 0 {
		var traveler amadeus.Traveler
		if err := json.Unmarshal(input.Raw, &traveler); err != nil {
			return amadeus.Traveler{}, domain.NewValidationError("travelers", "traveler payload is not valid JSON")
		}
		if traveler.ID == "" {
			traveler.ID = strconv.Itoa(index + 1)
		}
		return traveler, nil
	}

	traveler := amadeus.Traveler{
		ID:          strconv.Itoa(index + 1),
		DateOfBirth: input.DateOfBirth,
		Gender:      input.Gender,
		Name:        amadeus.Name{FirstName: input.FirstName, LastName: input.LastName},
	}
	if input.Email != "" || input.Phone != "" {
		contact := &amadeus.Contact{EmailAddress: input.Email}
		if input.Phone != "" {
			contact.Phones = []amadeus.Phone{{DeviceType: "MOBILE", Number: input.Phone}}
		}
		traveler.Contact = contact
	}
	if input.PassportNumber != "" {
		traveler.Documents = []amadeus.Document{{
			DocumentType: "PASSPORT",
			Number:       input.PassportNumber,
			ExpiryDate:   input.PassportExpiry,
			Nationality:  input.Nationality,
			Holder:       true,
		}}
	}
	return traveler, nil
}

func toRow(t amadeus.Traveler) domain.Traveler {
	row := domain.Traveler{
		FirstName:   t.Name.FirstName,
		LastName:    t.Name.LastName,
		DateOfBirth: t.DateOfBirth,
		Gender:      t.Gender,
	}
	if t.Contact != nil {
		row.Email = t.Contact.EmailAddress
		if len(t.Contact.Phones) > 0 {
			row.Phone = t.Contact.Phones[0].Number
		}
	}
	if len(t.Documents) > 0 {
		row.PassportNumber = t.Documents[0].Number
		row.PassportExpiry = t.Documents[0].ExpiryDate
		row.Nationality = t.Documents[0].Nationality
	}
	return row
}
