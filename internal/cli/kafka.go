package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airblackbox/runtime-aibom-emitter/internal/config"
	"github.com/airblackbox/runtime-aibom-emitter/internal/kafkaconn"
)

var kafkaCheckCmd = &cobra.Command{
	Use:   "kafka-check",
	Short: "Verify the Kafka sink brokers and topic are reachable",
	RunE:  runKafkaCheck,
}

func init() {
	kafkaCheckCmd.Flags().String("brokers", "", "Comma-separated brokers (default kafka.brokers)")
	kafkaCheckCmd.Flags().String("topic", "", "Topic (default kafka.topic)")
	rootCmd.AddCommand(kafkaCheckCmd)
}

func runKafkaCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if b, _ := cmd.Flags().GetString("brokers"); b != "" {
		cfg.Kafka.Brokers = b
	}
	if tp, _ := cmd.Flags().GetString("topic"); tp != "" {
		cfg.Kafka.Topic = tp
	}
	settings := kafkaSettings(cfg.Kafka)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Brokers:  %v\n", settings.Brokers)
	fmt.Fprintf(w, "Topic:    %s\n", cfg.Kafka.Topic)
	fmt.Fprintf(w, "Security: %s %s\n", orDefault(settings.SecurityProtocol, "PLAINTEXT"), settings.SASLMechanism)
	if shown := settings.Redacted(); shown.Username != "" {
		fmt.Fprintf(w, "Auth:     %s / %s\n", shown.Username, shown.Password)
	}

	st, err := kafkaconn.CheckTopic(cmd.Context(), settings, cfg.Kafka.Topic)
	if err != nil {
		printFail(w, "Kafka check failed: %v", err)
		return err
	}
	printOK(w, "Topic %s visible on %s (partitions=%d, leaders=%d)", cfg.Kafka.Topic, st.Broker, st.Partitions, st.Leaders)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
