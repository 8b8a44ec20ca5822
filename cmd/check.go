package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/browser/cdpdriver"
	"github.com/xkilldash9x/pagewright/internal/browser/pwdriver"
	"github.com/xkilldash9x/pagewright/internal/config"
	"github.com/xkilldash9x/pagewright/internal/observability"
	"github.com/xkilldash9x/pagewright/internal/readiness"
	"github.com/xkilldash9x/pagewright/internal/visual"
)

// launchers maps browser.driver values to driver constructors. Tests swap
// entries for mocks.
var launchers = map[string]browser.LaunchFunc{
	config.DriverPlaywright: pwdriver.Launch,
	config.DriverCDP:        cdpdriver.Launch,
}

const shutdownTimeout = 30 * time.Second

// Report is the JSON document printed by `check`.
type Report struct {
	URL      string         `json:"url"`
	FinalURL string         `json:"final_url,omitempty"`
	Driver   string         `json:"driver"`
	Passed   bool           `json:"passed"`
	Duration string         `json:"duration"`
	Checks   []CheckResult  `json:"checks"`
	Visual   *visual.Result `json:"visual,omitempty"`
}

// CheckResult is the outcome of one readiness step. Soft steps are reported
// but never fail the run.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Soft     bool   `json:"soft,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// ErrCheckFailed is returned after the report is printed when a hard check
// failed.
var ErrCheckFailed = errors.New("page check failed")

type checkOptions struct {
	apis            []string
	resources       bool
	baseline        string
	driver          string
	headless        bool
	updateBaselines bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	checkCmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Loads a page and reports whether it reached readiness",
		Long: `Navigates to the URL, waits for network idle and for images and media to
finish loading, then optionally waits for API responses, tracked resources and
a visual baseline match. The report is printed as JSON on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyCheckFlags(cmd, cfg, opts); err != nil {
				return err
			}

			report, err := runCheck(cmd.Context(), cfg, normalizeURL(args[0]), opts, observability.GetLogger())
			if report != nil {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return fmt.Errorf("failed to write report: %w", encErr)
				}
			}
			return err
		},
	}

	checkCmd.Flags().StringArrayVar(&opts.apis, "api", nil, "API URL that must answer with a 2xx response (repeatable)")
	checkCmd.Flags().BoolVar(&opts.resources, "resources", false, "wait for tracked resource requests to settle")
	checkCmd.Flags().StringVar(&opts.baseline, "baseline", "", "compare a full page screenshot against this baseline name")
	checkCmd.Flags().StringVar(&opts.driver, "driver", "", "browser driver to use (playwright or cdp)")
	checkCmd.Flags().BoolVar(&opts.headless, "headless", true, "run the browser headless")
	checkCmd.Flags().BoolVar(&opts.updateBaselines, "update-baselines", false, "write missing baselines instead of failing")
	return checkCmd
}

// applyCheckFlags lets explicitly set flags override the loaded configuration.
func applyCheckFlags(cmd *cobra.Command, cfg *config.Config, opts checkOptions) error {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.SetBrowserDriver(strings.ToLower(opts.driver))
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("update-baselines") {
		cfg.SetVisualUpdateBaselines(opts.updateBaselines)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// normalizeURL adds an https scheme when none is given.
func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "about:") || strings.HasPrefix(raw, "data:") {
		return raw
	}
	return "https://" + raw
}

// runCheck drives one page through the readiness sequence. The returned
// report is non-nil whenever a page was opened, even on failure.
func runCheck(ctx context.Context, cfg *config.Config, url string, opts checkOptions, logger *zap.Logger) (report *Report, err error) {
	launch, ok := launchers[cfg.Browser().Driver]
	if !ok {
		return nil, fmt.Errorf("no launcher registered for driver %q", cfg.Browser().Driver)
	}

	manager := browser.NewManager(cfg.Browser(), launch, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(browser.Detach(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := manager.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("Browser shutdown reported errors.", zap.Error(shutdownErr))
		}
	}()

	page, err := manager.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report = &Report{URL: url, Driver: cfg.Browser().Driver, Passed: true}
	defer func() { report.Duration = time.Since(start).Round(time.Millisecond).String() }()

	waiter := readiness.New(cfg.Readiness(), logger)

	var apis *readiness.URLWatch
	if len(opts.apis) > 0 {
		apis = waiter.ExpectURLs(page, opts.apis)
		defer apis.Stop()
	}

	if !report.step("navigate", false, func() error { return page.Goto(ctx, url) }) {
		return report, fmt.Errorf("%w: %s", ErrCheckFailed, report.Checks[0].Error)
	}
	report.FinalURL = page.URL()
	logger.Info("Page loaded.", zap.String("url", url), zap.String("final_url", report.FinalURL))

	report.step("network idle", true, func() error { return waiter.WaitForNetworkIdle(ctx, page) })
	report.step("images and media", false, func() error { return waiter.WaitForMedia(ctx, page) })

	if apis != nil {
		report.step("api responses", false, func() error {
			return apis.Wait(ctx, readiness.WithNetworkIdle(false))
		})
	}
	if opts.resources {
		report.step("resources", false, func() error { return waiter.WaitForResources(ctx, page) })
	}
	if opts.baseline != "" {
		comparer := visual.New(cfg.Visual(), logger)
		report.step("visual "+opts.baseline, false, func() error {
			res, err := comparer.CompareFullPage(ctx, page, opts.baseline)
			report.Visual = res
			return err
		})
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if !report.Passed {
		return report, ErrCheckFailed
	}
	return report, nil
}

// step runs fn, records its outcome and reports whether it passed.
func (r *Report) step(name string, soft bool, fn func() error) bool {
	start := time.Now()
	err := fn()
	res := CheckResult{
		Name:     name,
		Passed:   err == nil,
		Soft:     soft,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Error = err.Error()
		if !soft {
			r.Passed = false
		}
	}
	r.Checks = append(r.Checks, res)
	return err == nil
}
