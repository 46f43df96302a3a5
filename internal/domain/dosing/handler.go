package dosing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oncoclinic/infusion/internal/platform/validation"
)

// Handler exposes the formulas for previews before a prescription exists.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/dosing/preview", h.Preview)
}

type PreviewRequest struct {
	Patient Patient `json:"patient"`
	Rules   []Rule  `json:"rules" validate:"min=1,dive"`
}

type PreviewResponse struct {
	BSA   float64 `json:"bsa"`
	GFR   float64 `json:"gfr"`
	Doses []Doses `json:"doses"`
}

// Preview computes a patient's BSA, GFR and the doses of each rule.
func Preview(req PreviewRequest) PreviewResponse {
	p := req.Patient
	res := PreviewResponse{
		BSA:   BSA(p.WeightKg, p.HeightCm),
		GFR:   Round(GFR(p.WeightKg, p.AgeYears, p.Sex, p.Creatinine, 0, 0), 2),
		Doses: make([]Doses, 0, len(req.Rules)),
	}
	for _, r := range req.Rules {
		res.Doses = append(res.Doses, Compute(r.WithDefaults(), p))
	}
	return res
}

func (h *Handler) Preview(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"message": "invalid request", "errors": verrs})
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, Preview(req))
}
