package amadeus

import "encoding/json"

// Traveler is the provider's traveler shape sent on order creation.
type Traveler struct {
	ID          string     `json:"id"`
	DateOfBirth string     `json:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Name        Name       `json:"name"`
	Contact     *Contact   `json:"contact,omitempty"`
	Documents   []Document `json:"documents,omitempty"`
}

type Name struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Contact struct {
	EmailAddress string  `json:"emailAddress,omitempty"`
	Phones       []Phone `json:"phones,omitempty"`
}

type Phone struct {
	DeviceType         string `json:"deviceType"`
	CountryCallingCode string `json:"countryCallingCode,omitempty"`
	Number             string `json:"number"`
}

type Document struct {
	DocumentType    string `json:"documentType"`
	Number          string `json:"number"`
	ExpiryDate      string `json:"expiryDate,omitempty"`
	IssuanceCountry string `json:"issuanceCountry,omitempty"`
	Nationality     string `json:"nationality,omitempty"`
	Holder          bool   `json:"holder"`
}

type FlightSearchQuery struct {
	Origin      string
	Destination string
	Date        string
	ReturnDate  string
	Adults      int
	Currency    string
	Max         int
}

type HotelSearchQuery struct {
	CityCode     string
	CheckInDate  string
	CheckOutDate string
	Adults       int
	Currency     string
}

type TransferQuery struct {
	StartLocationCode string
	EndAddressLine    string
	StartDateTime     string
	Passengers        int
	Currency          string
}

// Location is a reference-data entry for an airport or city.
type Location struct {
	IataCode string `json:"iataCode"`
	Name     string `json:"name"`
	CityName string `json:"cityName"`
	Country  string `json:"countryName"`
}

// FlightOrder is the result of order creation: the verbatim provider payload
// plus the fields the orchestrator needs from it.
type FlightOrder struct {
	Raw       json.RawMessage
	Reference string
	OfferID   string
	BasePrice float64
	Currency  string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type orderPayload struct {
	Data orderData `json:"data"`
}

type orderData struct {
	Type         string            `json:"type"`
	ID           string            `json:"id,omitempty"`
	FlightOffers []json.RawMessage `json:"flightOffers"`
	Travelers    []Traveler        `json:"travelers,omitempty"`
}

type orderResult struct {
	Data struct {
		ID                string `json:"id"`
		AssociatedRecords []struct {
			Reference string `json:"reference"`
		} `json:"associatedRecords"`
		FlightOffers []struct {
			ID    string `json:"id"`
			Price struct {
				GrandTotal string `json:"grandTotal"`
				Total      string `json:"total"`
				Currency   string `json:"currency"`
			} `json:"price"`
		} `json:"flightOffers"`
	} `json:"data"`
}

type locationsResult struct {
	Data []struct {
		IataCode string `json:"iataCode"`
		Name     string `json:"name"`
		Address  struct {
			CityName    string `json:"cityName"`
			CountryName string `json:"countryName"`
		} `json:"address"`
	} `json:"data"`
}

type airlinesResult struct {
	Data []struct {
		IataCode     string `json:"iataCode"`
		BusinessName string `json:"businessName"`
		CommonName   string `json:"commonName"`
	} `json:"data"`
}
