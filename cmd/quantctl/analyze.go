package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/points"
)

// pointsCmd clusters a point set
func pointsCmd() *cobra.Command {
	var (
		input     string
		k         int
		metric    string
		seed      uint64
		reduce    bool
		minSize   int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Cluster points and report correlations, outliers and reduction",
		Long: `Reads a points request (JSON) or a CSV with one point per row. In CSV the
optional id and label columns are copied and every other column is a dimension.
Flags override the corresponding request options.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, err := readInput(input)
			if err != nil {
				return err
			}
			req := &api.PointsRequest{}
			if format == "csv" {
				if req.Points, err = pointsFromCSV(data); err != nil {
					return err
				}
			} else if err := decodeJSON(data, req); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("k") {
				req.Clustering.K = k
			}
			if flags.Changed("metric") {
				req.Clustering.DistanceMetric = metric
			}
			if flags.Changed("seed") {
				req.Seed = seed
			}
			if flags.Changed("min-cluster-size") {
				req.Clustering.MinClusterSize = minSize
			}
			if reduce {
				req.DimensionReduction = &points.ReductionOptions{Enabled: true}
			}
			if flags.Changed("outlier-threshold") {
				req.OutlierDetection = &points.OutlierOptions{Enabled: true, Threshold: threshold}
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.AnalyzePoints(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input file (JSON or CSV, - for stdin)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Cluster count (0 = estimate)")
	cmd.Flags().StringVar(&metric, "metric", "", "Distance metric: euclidean, manhattan or cosine")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 = random, result not cached)")
	cmd.Flags().BoolVar(&reduce, "reduce", false, "Include the dimension reduction")
	cmd.Flags().IntVar(&minSize, "min-cluster-size", 0, "Flag clusters smaller than this")
	cmd.Flags().Float64Var(&threshold, "outlier-threshold", 0, "Outlier z-score threshold")

	return cmd
}

// neighborsCmd ranks the points most similar to a target
func neighborsCmd() *cobra.Command {
	var (
		input  string
		target string
		n      int
	)
	cmd := &cobra.Command{
		Use:   "neighbors",
		Short: "List the points most similar to a target point",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, err := readInput(input)
			if err != nil {
				return err
			}
			var pts []points.Point
			if format == "csv" {
				pts, err = pointsFromCSV(data)
			} else {
				var req api.PointsRequest
				err = decodeJSON(data, &req)
				pts = req.Points
			}
			if err != nil {
				return err
			}

			idx := -1
			for i, p := range pts {
				if p.ID == target {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("target point %q not found", target)
			}
			candidates := make([]points.Point, 0, len(pts)-1)
			candidates = append(candidates, pts[:idx]...)
			candidates = append(candidates, pts[idx+1:]...)

			return printResult(points.NearestNeighbors(pts[idx], candidates, n))
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input file (JSON or CSV, - for stdin)")
	cmd.Flags().StringVar(&target, "target", "", "ID of the target point")
	cmd.Flags().IntVarP(&n, "n", "n", 5, "Number of neighbours")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

// forecastCmd projects a time series
func forecastCmd() *cobra.Command {
	var (
		input       string
		horizon     int
		method      string
		confidence  float64
		granularity string
		period      int
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast a time series with confidence bands",
		Long: `Reads a forecast request (JSON) or a CSV with timestamp and value columns.
Timestamps may be RFC 3339, "2006-01-02 15:04:05" or "2006-01-02".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, err := readInput(input)
			if err != nil {
				return err
			}
			req := &api.ForecastRequest{}
			if format == "csv" {
				if req.Series, err = seriesFromCSV(data); err != nil {
					return err
				}
			} else if err := decodeJSON(data, req); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("horizon") {
				req.Horizon = horizon
			}
			if flags.Changed("method") {
				req.Method = forecast.Method(method)
			}
			if flags.Changed("confidence") {
				req.ConfidenceLevel = confidence
			}
			if granularity != "" || period > 0 {
				req.Seasonality = &forecast.Seasonality{Granularity: granularity, Period: period}
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.Forecast(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(res)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input file (JSON or CSV, - for stdin)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Steps to forecast")
	cmd.Flags().StringVar(&method, "method", "", "auto, moving_average, exponential_smoothing or linear_regression")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence level in (0,1)")
	cmd.Flags().StringVar(&granularity, "seasonality", "", "Seasonal granularity: hourly, daily, weekly, monthly or quarterly")
	cmd.Flags().IntVar(&period, "period", 0, "Explicit seasonal period")

	return cmd
}

// simulateCmd runs a Monte Carlo simulation
func simulateCmd() *cobra.Command {
	var (
		input      string
		iterations int
		seed       uint64
		summary    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a Monte Carlo scenario simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _, err := readInput(input)
			if err != nil {
				return err
			}
			req := &api.SimulateRequest{}
			if err := decodeJSON(data, req); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("iterations") {
				req.Iterations = iterations
			}
			if flags.Changed("seed") {
				req.Seed = seed
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.svc.SimulateScenario(cmd.Context(), req)
			if err != nil {
				return err
			}
			if summary {
				res.Result.Scenarios = nil
			}
			return printResult(res)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Simulation request (JSON, - for stdin)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Number of draws")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (0 = random, result not cached)")
	cmd.Flags().BoolVar(&summary, "summary", false, "Omit individual scenarios from the output")

	return cmd
}
