package validation

// Shared fixtures: a registry with realistic node definitions, no HTTP
// involved.

func floatPtr(v float64) *float64 { return &v }

func makePopulatedRegistry() *NodeRegistry {
	return NewStaticRegistry(map[string]NodeDefinition{
		"CheckpointLoaderSimple": {
			ClassType:   "CheckpointLoaderSimple",
			Category:    "loaders",
			DisplayName: "Load Checkpoint",
			InputsRequired: map[string]InputDefinition{
				"ckpt_name": {Name: "ckpt_name", Type: "COMBO", Required: true,
					Options: []any{"model.safetensors", "sd_xl_base.safetensors"}},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"MODEL", "CLIP", "VAE"},
			OutputNames:    []string{"MODEL", "CLIP", "VAE"},
		},
		"CLIPTextEncode": {
			ClassType:   "CLIPTextEncode",
			Category:    "conditioning",
			DisplayName: "CLIP Text Encode",
			InputsRequired: map[string]InputDefinition{
				"text": {Name: "text", Type: "STRING", Required: true},
				"clip": {Name: "clip", Type: "CLIP", Required: true},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"CONDITIONING"},
			OutputNames:    []string{"CONDITIONING"},
		},
		"EmptyLatentImage": {
			ClassType:   "EmptyLatentImage",
			Category:    "latent",
			DisplayName: "Empty Latent Image",
			InputsRequired: map[string]InputDefinition{
				"width": {Name: "width", Type: "INT", Required: true,
					Default: 512, MinVal: floatPtr(16), MaxVal: floatPtr(16384)},
				"height": {Name: "height", Type: "INT", Required: true,
					Default: 512, MinVal: floatPtr(16), MaxVal: floatPtr(16384)},
				"batch_size": {Name: "batch_size", Type: "INT", Required: true,
					Default: 1, MinVal: floatPtr(1), MaxVal: floatPtr(4096)},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"LATENT"},
			OutputNames:    []string{"LATENT"},
		},
		"KSampler": {
			ClassType:   "KSampler",
			Category:    "sampling",
			DisplayName: "KSampler",
			InputsRequired: map[string]InputDefinition{
				"model":        {Name: "model", Type: "MODEL", Required: true},
				"positive":     {Name: "positive", Type: "CONDITIONING", Required: true},
				"negative":     {Name: "negative", Type: "CONDITIONING", Required: true},
				"latent_image": {Name: "latent_image", Type: "LATENT", Required: true},
				"seed": {Name: "seed", Type: "INT", Required: true,
					Default: 0, MinVal: floatPtr(0), MaxVal: floatPtr(1 << 62)},
				"steps": {Name: "steps", Type: "INT", Required: true,
					Default: 20, MinVal: floatPtr(1), MaxVal: floatPtr(10000)},
				"cfg": {Name: "cfg", Type: "FLOAT", Required: true,
					Default: 8.0, MinVal: floatPtr(0), MaxVal: floatPtr(100)},
				"sampler_name": {Name: "sampler_name", Type: "COMBO", Required: true,
					Options: []any{"euler", "euler_ancestral", "heun", "dpm_2", "dpmpp_2m", "dpmpp_2m_sde", "dpmpp_sde"}},
				"scheduler": {Name: "scheduler", Type: "COMBO", Required: true,
					Options: []any{"normal", "karras", "exponential", "sgm_uniform"}},
				"denoise": {Name: "denoise", Type: "FLOAT", Required: true,
					Default: 1.0, MinVal: floatPtr(0), MaxVal: floatPtr(1)},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"LATENT"},
			OutputNames:    []string{"LATENT"},
		},
		"VAEDecode": {
			ClassType:   "VAEDecode",
			Category:    "latent",
			DisplayName: "VAE Decode",
			InputsRequired: map[string]InputDefinition{
				"samples": {Name: "samples", Type: "LATENT", Required: true},
				"vae":     {Name: "vae", Type: "VAE", Required: true},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"IMAGE"},
			OutputNames:    []string{"IMAGE"},
		},
		"SaveImage": {
			ClassType:   "SaveImage",
			Category:    "image",
			DisplayName: "Save Image",
			InputsRequired: map[string]InputDefinition{
				"images": {Name: "images", Type: "IMAGE", Required: true},
			},
			InputsOptional: map[string]InputDefinition{
				"filename_prefix": {Name: "filename_prefix", Type: "STRING", Default: "ComfyUI"},
			},
			OutputTypes: []string{},
			OutputNames: []string{},
		},
		"LoraLoader": {
			ClassType:   "LoraLoader",
			Category:    "loaders",
			DisplayName: "Load LoRA",
			InputsRequired: map[string]InputDefinition{
				"model": {Name: "model", Type: "MODEL", Required: true},
				"clip":  {Name: "clip", Type: "CLIP", Required: true},
				"lora_name": {Name: "lora_name", Type: "COMBO", Required: true,
					Options: []any{"detail.safetensors", "style.safetensors"}},
				"strength_model": {Name: "strength_model", Type: "FLOAT", Required: true,
					Default: 1.0, MinVal: floatPtr(-20), MaxVal: floatPtr(20)},
				"strength_clip": {Name: "strength_clip", Type: "FLOAT", Required: true,
					Default: 1.0, MinVal: floatPtr(-20), MaxVal: floatPtr(20)},
			},
			InputsOptional: map[string]InputDefinition{},
			OutputTypes:    []string{"MODEL", "CLIP"},
			OutputNames:    []string{"MODEL", "CLIP"},
		},
	})
}
