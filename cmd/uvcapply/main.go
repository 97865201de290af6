// Applies UVC control settings from a config file to matching cameras.
// Each rule must select exactly one camera; ambiguous or empty matches
// count as failures so a fleet script cannot half-apply silently.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/kevmo314/go-uvcctl"
	"github.com/kevmo314/go-uvcctl/pkg/controls"
	"github.com/kevmo314/go-uvcctl/pkg/rules"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "show matches and values without writing")
	verbose := flag.Bool("verbose", false, "print control info and read-back values")
	forceManual := flag.Bool("force-manual", false, "force manual exposure mode before applying settings")
	flag.Parse()

	configPath := "config.json"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}

	os.Exit(run(configPath, *dryRun, *verbose, *forceManual))
}

func run(configPath string, dryRun, verbose, forceManual bool) int {
	log.SetFlags(0)

	cameras, err := uvcctl.ListCameras()
	if err != nil {
		log.Printf("error: %s", err)
		return 1
	}
	defer func() {
		for _, cam := range cameras {
			cam.Release()
		}
	}()

	if len(cameras) == 0 {
		log.Printf("No UVC webcams found")
		return 1
	}

	cfg, err := rules.Load(configPath)
	if err != nil {
		log.Printf("error: %s", err)
		return 1
	}

	hadFailures := false
	for ruleIndex := range cfg.Cameras {
		rule := &cfg.Cameras[ruleIndex]

		var matched []int
		for i, cam := range cameras {
			if rule.Matches(cam, i) {
				matched = append(matched, i)
			}
		}
		switch {
		case len(matched) == 0:
			log.Printf("rule %d matched no cameras", ruleIndex)
			hadFailures = true
			continue
		case len(matched) > 1:
			log.Printf("rule %d is ambiguous, matched %d cameras:", ruleIndex, len(matched))
			for _, i := range matched {
				log.Printf("  %s", uvcctl.FormatCamera(cameras[i], i))
			}
			hadFailures = true
			continue
		}

		index := matched[0]
		log.Printf("target %s", uvcctl.FormatCamera(cameras[index], index))

		if dryRun {
			for _, item := range rule.Settings {
				log.Printf("  dry-run %v=%v", item.Key, item.Value)
			}
			continue
		}

		if !applyRule(cameras[index], rule, verbose, forceManual) {
			hadFailures = true
		}
	}

	if hadFailures {
		return 1
	}
	return 0
}

// applyRule opens a session on one camera and writes the rule's
// settings in config order. A per-control failure is reported and the
// remaining settings still run.
func applyRule(cam *uvcctl.Descriptor, rule *rules.Rule, verbose, forceManual bool) bool {
	ok := true
	err := uvcctl.WithSession(cam, func(session *uvcctl.Session) error {
		if forceManual {
			if err := session.ForceManualMode(); err != nil {
				log.Printf("  force-manual failed: %s", err)
				ok = false
			} else {
				log.Printf("  force-manual applied")
			}
		}

		for _, item := range rule.Settings {
			id := item.Key.(string)
			spec, err := session.ControlSpec(id)
			if err != nil {
				log.Printf("  fail %s: %s", id, err)
				ok = false
				continue
			}

			info, err := session.ControlInfo(id)
			if err != nil {
				log.Printf("  fail %s: %s", id, err)
				ok = false
				continue
			}
			if !info.Capable {
				log.Printf("  skip %s: not supported", id)
				continue
			}
			if verbose {
				log.Printf("  info %s: kind=%s cur=%s min=%s max=%s res=%s",
					id, info.Kind, info.Current, info.Minimum, info.Maximum, info.Resolution)
			}

			value, err := rules.CoerceValue(spec, item.Value)
			if err != nil {
				log.Printf("  fail %s: %s", id, err)
				ok = false
				continue
			}

			var before controls.Value
			if verbose {
				before, _ = session.GetControl(id)
			}
			applied, err := session.SetControl(id, value)
			if err != nil {
				log.Printf("  fail %s: %s", id, err)
				ok = false
				continue
			}
			readBack, err := session.GetControl(id)
			if err != nil {
				log.Printf("  fail %s: read back: %s", id, err)
				ok = false
				continue
			}
			log.Printf("  set %s: requested=%v applied=%s read_back=%s", id, item.Value, applied, readBack)
			if verbose {
				log.Printf("  before %s=%s", id, before)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("  fail opening camera: %s", err)
		return false
	}
	return ok
}
