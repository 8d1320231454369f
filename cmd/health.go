package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/mnemo/pkg/stores/qdrant"
	"github.com/theapemachine/mnemo/pkg/stores/rediscache"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the vector index and query cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		index := qdrant.New(viper.GetString("qdrant.endpoint"), nil)
		cache := rediscache.New(
			viper.GetString("redis.addr"),
			rediscache.WithCredentials(viper.GetString("redis.password"), viper.GetInt("redis.db")),
		)

		defer cache.Close()

		indexUp := index.Healthy(cmd.Context())
		cacheUp := cache.Connect(cmd.Context()) == nil

		fmt.Printf("qdrant: %s\n", statusWord(indexUp))
		fmt.Printf("redis:  %s\n", statusWord(cacheUp))

		if !indexUp {
			return fmt.Errorf("vector index unreachable at %s", viper.GetString("qdrant.endpoint"))
		}

		return nil
	},
}

func statusWord(up bool) string {
	if up {
		return "ok"
	}

	return "unreachable"
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
