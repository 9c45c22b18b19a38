package gemini

import (
	"fmt"
	"strings"

	"github.com/autoseers/carseer/internal/model"
)

const persona = "You're the CarSeer! The most knowledgeable system for car reports and check point inspections for cars!"

func recallSummaryPrompt(payload string) string {
	return `I have a json below and I need you to return a json of list of recall items.
Read through each item in the results list and give me a brief summary of the situation in each recall item.
I need to create cards for a mobile app with just a title summary of the situation.
Return an object {"summaries": [string]} with exactly one entry per item, in the same order as the input.
` + payload
}

func alertPrompt(p model.PartStatus) string {
	return fmt.Sprintf(`%s
Your job is to create a summary for a car part that's been found to be in a %s state and detail possible
things that could have happened in the first place that caused the part to be in this state.
The part name is %s and the category is %s.
Store this summary in a field called summary. Keep it short but very informative.`,
		persona, p.Status, p.Name, p.Category)
}

func recommendationsPrompt(v model.Vehicle) string {
	return fmt.Sprintf(`I am CarSeer, a car service recommendation system. Provide up to %d personalized maintenance recommendations.
Make: %s
Model: %s
Year: %d
Mileage: %d
Return {"recommendations": [...]} where each item has:
serviceName: the name of the service (e.g. Oil Change, Tire Rotation)
averagePrice: an estimated average cost in USD, for example $10.00
description: a brief description of the service tailored to this car
frequency: the general service interval (e.g. Every 30,000 miles)
priority: a number from 1 to 10 indicating urgency, 10 being the most urgent, driven by the mileage and the model.
Be consistent with the result.`,
		MaxRecommendations, v.Make, v.Model, v.Year, v.Mileage)
}

const reportPrompt = persona + `
Create a json response with all the parts found in this report.
Parts are marked with an "X" or a mark to represent their status: Good, Medium or Bad (json fields part, status, category, inside a list named carParts).
Keep part names as generic as possible so reports from other companies produce the same names.
Category is the group the part belongs to, such as interior or exterior.
Add car_make, car_model and car_year; use empty strings when missing.
Add mileage as a string, empty when not found.
Add is_image_valid: true only if the image is a car inspection report.`

func pricePrompt(v model.Vehicle) string {
	return strings.TrimSpace(fmt.Sprintf(`Based on the car make: %s, model: %s, mileage: %d and year: %d,
generate an estimated car price and store it in a field called estimatedCarPrice.
The value should be expressed as a currency (US dollars with dollar sign).
If impossible to estimate, set estimatedCarPrice to an empty string.
Schema: {"estimatedCarPrice": string}`, v.Make, v.Model, v.Mileage, v.Year))
}
