package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/jsonval"
)

var (
	produceBroker  string
	produceTopic   string
	produceKey     string
	produceHeaders string
)

var produceCmd = &cobra.Command{
	Use:   "produce <value>",
	Short: "Send one message to a Kafka topic",
	Long: `Publish a single message. The value is sent as given; headers are a
JSON object whose values are sent as strings.

Examples:
  flowscope produce --broker localhost:9092 --topic orders '{"flowId":"abc"}'
  flowscope produce --broker localhost:9092 --topic orders --key order-1 \
    --headers '{"flowId":"abc"}' 'order created'`,
	Args: cobra.ExactArgs(1),
	RunE: runProduce,
}

func init() {
	f := produceCmd.Flags()
	f.StringVar(&produceBroker, "broker", "", "comma-separated broker list")
	f.StringVar(&produceTopic, "topic", "", "destination topic")
	f.StringVar(&produceKey, "key", "", "message key")
	f.StringVar(&produceHeaders, "headers", "", "headers as a JSON object")
	_ = produceCmd.MarkFlagRequired("broker")
	_ = produceCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(produceCmd)
}

func runProduce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	req := ingest.ProduceRequest{
		Broker: produceBroker,
		Topic:  produceTopic,
		Key:    produceKey,
		Value:  jsonval.StringValue(args[0]),
	}
	if produceHeaders != "" {
		if _, ok := jsonval.ParseObject(produceHeaders); !ok {
			return fmt.Errorf("--headers must be a JSON object")
		}
		req.Headers = jsonval.StringValue(produceHeaders)
	}

	res, err := ingest.NewProducer(cfg.Kafka.ProducerClientID, logger).Send(req)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent to %s partition %d offset %s\n", res.Topic, res.Partition, res.Offset)
	return nil
}
