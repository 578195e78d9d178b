package e2e

import (
	"github.com/cucumber/godog"

	"fleetbook/e2e/steps/allocation"
	"fleetbook/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// booking lifecycle
	allocation.RegisterSteps(ctx, tc)
}
