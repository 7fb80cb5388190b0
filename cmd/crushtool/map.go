package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zcrush/internal/domain"
	"github.com/zzenonn/zcrush/internal/placement"
	"github.com/zzenonn/zcrush/internal/service"
)

var buildCmd = &cobra.Command{
	Use:   "build [description.yaml]",
	Short: "Build, finalize and publish the map described by a YAML file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := buildFromFile(args[0])
		if err != nil {
			fmt.Printf("Error building map: %v\n", err)
			return
		}

		v, err := mapService.Publish(cfg.Publish, res)
		if err != nil {
			fmt.Printf("Error publishing map: %v\n", err)
			return
		}

		output, _ := cmd.Flags().GetString("output")
		if err := writeSummary(res, v, output); err != nil {
			fmt.Printf("Error writing summary: %v\n", err)
			return
		}
		fmt.Printf("Map %s published at epoch %d: %d buckets, %d rules, fingerprint %s\n",
			v.Name, v.Epoch, res.Map.BucketCount(), len(res.Map.RuleIDs()), v.Fingerprint.Short())
	},
}

var ecRuleCmd = &cobra.Command{
	Use:   "ec-rule [description.yaml]",
	Short: "Add an erasure-coded pool rule to a described map",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := buildFromFile(args[0])
		if err != nil {
			fmt.Printf("Error building map: %v\n", err)
			return
		}

		name, _ := cmd.Flags().GetString("name")
		dataShards, _ := cmd.Flags().GetInt("data-shards")
		parityShards, _ := cmd.Flags().GetInt("parity-shards")
		root, _ := cmd.Flags().GetString("root")
		failureDomain, _ := cmd.Flags().GetString("failure-domain")

		id, err := mapService.AddErasureRule(res, domain.ErasureProfile{
			Name:          name,
			DataShards:    dataShards,
			ParityShards:  parityShards,
			Root:          root,
			FailureDomain: failureDomain,
		})
		if err != nil {
			fmt.Printf("Error creating erasure rule: %v\n", err)
			return
		}

		v, err := mapService.Publish(cfg.Publish, res)
		if err != nil {
			fmt.Printf("Error publishing map: %v\n", err)
			return
		}
		output, _ := cmd.Flags().GetString("output")
		if err := writeSummary(res, v, output); err != nil {
			fmt.Printf("Error writing summary: %v\n", err)
			return
		}
		fmt.Printf("Erasure rule %s (k=%d, m=%d) created as rule %d, fingerprint %s\n",
			name, dataShards, parityShards, id, v.Fingerprint.Short())
	},
}

var reweightCmd = &cobra.Command{
	Use:   "reweight [description.yaml] [device] [weight]",
	Short: "Change the weight of a device and propagate it to every ancestor",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		device, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			fmt.Printf("Error: invalid device %q: %v\n", args[1], err)
			return
		}
		weight, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fmt.Printf("Error: invalid weight %q: %v\n", args[2], err)
			return
		}

		res, err := buildFromFile(args[0])
		if err != nil {
			fmt.Printf("Error building map: %v\n", err)
			return
		}
		before, _ := res.Map.Fingerprint()

		changed, err := mapService.Reweight(res, int32(device), weight)
		if err != nil {
			fmt.Printf("Error reweighting device: %v\n", err)
			return
		}

		v, err := mapService.Publish(cfg.Publish, res)
		if err != nil {
			fmt.Printf("Error publishing map: %v\n", err)
			return
		}
		output, _ := cmd.Flags().GetString("output")
		if err := writeSummary(res, v, output); err != nil {
			fmt.Printf("Error writing summary: %v\n", err)
			return
		}
		fmt.Printf("osd.%d reweighted to %.4f in %d buckets, fingerprint %s -> %s\n",
			device, weight, changed, before.Short(), v.Fingerprint.Short())
	},
}

func buildFromFile(path string) (*service.BuildResult, error) {
	desc, err := domain.LoadMapDescription(path)
	if err != nil {
		return nil, err
	}
	return mapService.Build(desc, cfg.Quiet)
}

// writeSummary writes the map as YAML to output. Nothing is written when
// output is empty; "-" writes to stdout and a .zst suffix compresses.
func writeSummary(res *service.BuildResult, v placement.Version, output string) error {
	if output == "" {
		return nil
	}
	summary, err := service.Summarize(res)
	if err != nil {
		return err
	}
	summary.Name = v.Name
	summary.Epoch = v.Epoch

	if output == "-" {
		return service.WriteSummary(os.Stdout, summary, false)
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := service.WriteSummary(f, summary, strings.HasSuffix(output, ".zst")); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	for _, cmd := range []*cobra.Command{buildCmd, ecRuleCmd, reweightCmd} {
		cmd.Flags().StringP("output", "o", "", "write the resulting map as YAML to this file (- for stdout, .zst to compress)")
		rootCmd.AddCommand(cmd)
	}

	ecRuleCmd.Flags().String("name", "ecpool", "rule name")
	ecRuleCmd.Flags().IntP("data-shards", "k", 4, "number of data shards")
	ecRuleCmd.Flags().IntP("parity-shards", "m", 2, "number of parity shards")
	ecRuleCmd.Flags().String("root", "default", "bucket to place shards below")
	ecRuleCmd.Flags().String("failure-domain", "host", "bucket type each shard must be separated by")
}
