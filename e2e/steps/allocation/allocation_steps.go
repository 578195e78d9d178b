package allocation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PUT(path string, body any) error
	DELETE(path string, body any) error
	StatusCode() int
	GetResponseField(field string) (any, error)
	Day(n int) string
	Remember(name, value string)
	Recall(name string) (string, error)
}

// RegisterSteps registers allocation lifecycle steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &allocationSteps{tc: tc}

	ctx.Step(`^employee (\d+) books vehicle (\d+) on day (\d+)$`, steps.bookOnDay)
	ctx.Step(`^employee (\d+) books vehicle (\d+) on "([^"]*)"$`, steps.bookOnDate)
	ctx.Step(`^employee (\d+) has booked vehicle (\d+) on day (\d+) as "([^"]*)"$`, steps.hasBooked)
	ctx.Step(`^employee (\d+) moves "([^"]*)" to vehicle (\d+) on day (\d+)$`, steps.move)
	ctx.Step(`^employee (\d+) cancels "([^"]*)"$`, steps.cancel)
	ctx.Step(`^I fetch "([^"]*)"$`, steps.fetch)
	ctx.Step(`^I list allocations for employee (\d+) on day (\d+)$`, steps.listForEmployeeOnDay)
}

type allocationSteps struct {
	tc TestContext
}

func (s *allocationSteps) book(employeeID, vehicleID int, date string) error {
	return s.tc.POST("/allocations", map[string]any{
		"employee_id": employeeID,
		"vehicle_id":  vehicleID,
		"date":        date,
	})
}

func (s *allocationSteps) bookOnDay(_ context.Context, employeeID, vehicleID, day int) error {
	return s.book(employeeID, vehicleID, s.tc.Day(day))
}

func (s *allocationSteps) bookOnDate(_ context.Context, employeeID, vehicleID int, date string) error {
	return s.book(employeeID, vehicleID, date)
}

func (s *allocationSteps) hasBooked(_ context.Context, employeeID, vehicleID, day int, name string) error {
	if err := s.book(employeeID, vehicleID, s.tc.Day(day)); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("booking failed with status %d", s.tc.StatusCode())
	}
	allocationID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Remember(name, fmt.Sprint(allocationID))
	return nil
}

func (s *allocationSteps) move(_ context.Context, employeeID int, name string, vehicleID, day int) error {
	allocationID, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.PUT("/allocations/"+allocationID, map[string]any{
		"employee_id": employeeID,
		"vehicle_id":  vehicleID,
		"date":        s.tc.Day(day),
	})
}

func (s *allocationSteps) cancel(_ context.Context, employeeID int, name string) error {
	allocationID, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.DELETE("/allocations/"+allocationID, map[string]any{"employee_id": employeeID})
}

func (s *allocationSteps) fetch(_ context.Context, name string) error {
	allocationID, err := s.tc.Recall(name)
	if err != nil {
		return err
	}
	return s.tc.GET("/allocations/" + allocationID)
}

func (s *allocationSteps) listForEmployeeOnDay(_ context.Context, employeeID, day int) error {
	q := url.Values{}
	q.Set("employee_id", fmt.Sprint(employeeID))
	q.Set("date", s.tc.Day(day))
	return s.tc.GET("/allocations?" + q.Encode())
}
