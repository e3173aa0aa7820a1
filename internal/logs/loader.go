package logs

// LoaderKind is the closed set of mod loaders and server platforms the parsers detect.
type LoaderKind string

const (
	LoaderQuilt      LoaderKind = "quilt"
	LoaderFabric     LoaderKind = "fabric"
	LoaderForge      LoaderKind = "forge"
	LoaderNeoForge   LoaderKind = "neoforge"
	LoaderPaper      LoaderKind = "paper"
	LoaderPurpur     LoaderKind = "purpur"
	LoaderSpigot     LoaderKind = "spigot"
	LoaderBukkit     LoaderKind = "bukkit"
	LoaderVelocity   LoaderKind = "velocity"
	LoaderBungeeCord LoaderKind = "bungeecord"
	LoaderWaterfall  LoaderKind = "waterfall"
)

// IsPluginPlatform reports whether the loader runs Bukkit-style or proxy plugins rather than mods.
func (k LoaderKind) IsPluginPlatform() bool {
	switch k {
	case LoaderPaper, LoaderPurpur, LoaderSpigot, LoaderBukkit, LoaderVelocity, LoaderBungeeCord, LoaderWaterfall:
		return true
	}
	return false
}

// LoaderEntry is one detected loader with its version.
type LoaderEntry struct {
	Kind    LoaderKind
	Version Version
}
