package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagAPIBaseURL      = "api-base-url"
	flagRPCURL          = "rpc-url"
	flagContractAddress = "contract-address"
	flagPrivateKey      = "private-key"
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagSignerKey       = "signer-key"
	flagHandshake       = "require-handshake"
	flagSortBy          = "sort-by"
	flagLimit           = "limit"

	configKeyAPIBaseURL      = "api_base_url"
	configKeyRPCURL          = "rpc_url"
	configKeyContractAddress = "contract_address"
	configKeyPrivateKey      = "private_key"
	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeySignerKey       = "signer_key"
	configKeyHandshake       = "require_handshake"

	defaultAPIBaseURL  = "http://localhost:8787"
	defaultRPCURL      = "https://mainnet.base.org"
	defaultDatabaseURL = "sqlite:///tmp/dopewars.db"
	defaultListenAddr  = ":8787"
)

type runtimeConfig struct {
	APIBaseURL      string
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	DatabaseURL     string
	ListenAddr      string
	AllowedOrigins  string
	SignerKey       string
	Handshake       bool
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dopewars: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "dopewars",
		Short:         "DopeWars on Base game client and development server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String(flagAPIBaseURL, defaultAPIBaseURL, "Game backend base URL")
	cmd.PersistentFlags().String(flagRPCURL, defaultRPCURL, "Ethereum JSON-RPC endpoint")
	cmd.PersistentFlags().String(flagContractAddress, "", "Settlement contract address")
	cmd.PersistentFlags().String(flagPrivateKey, "", "Hex private key of the player wallet")

	cmd.AddCommand(newPlayCommand(cfg))
	cmd.AddCommand(newLeaderboardCommand(cfg))
	cmd.AddCommand(newServeCommand(cfg))

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyAPIBaseURL:      "API_BASE_URL",
		configKeyRPCURL:          "RPC_URL",
		configKeyContractAddress: "CONTRACT_ADDRESS",
		configKeyPrivateKey:      "PRIVATE_KEY",
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeySignerKey:       "SETTLEMENT_SIGNER_KEY",
		configKeyHandshake:       "REQUIRE_HANDSHAKE",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagKeys := map[string]string{
		configKeyAPIBaseURL:      flagAPIBaseURL,
		configKeyRPCURL:          flagRPCURL,
		configKeyContractAddress: flagContractAddress,
		configKeyPrivateKey:      flagPrivateKey,
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeySignerKey:       flagSignerKey,
		configKeyHandshake:       flagHandshake,
	}
	for key, name := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.InheritedFlags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	cfg.APIBaseURL = viper.GetString(configKeyAPIBaseURL)
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.RPCURL = viper.GetString(configKeyRPCURL)
	if cfg.RPCURL == "" {
		cfg.RPCURL = defaultRPCURL
	}
	cfg.ContractAddress = viper.GetString(configKeyContractAddress)
	cfg.PrivateKey = viper.GetString(configKeyPrivateKey)
	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.SignerKey = viper.GetString(configKeySignerKey)
	cfg.Handshake = viper.GetBool(configKeyHandshake)
	return nil
}
